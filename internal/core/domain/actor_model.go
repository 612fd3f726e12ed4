package domain

import (
	"github.com/asynkron/protoactor-go/actor"
)

const (
	ACTOR_ID_MASTER      = "master"
	ACTOR_ID_MQTT        = "mqtt"
	ACTOR_ID_COORDINATOR = "coordinator"
)

type ActorRef actor.PID

type ActorRequestMixIn struct {
	ReplyToRef *ActorRef
}

type ActorRequest interface {
	ReplyTo() *ActorRef
}

func (r ActorRequestMixIn) ReplyTo() *ActorRef {
	return r.ReplyToRef
}

type ActorResponseMixIn struct {
	ResponseError error
}

type ActorResponse interface {
	GetResponseError() error
	HasResponseError() bool
}

func (r ActorResponseMixIn) GetResponseError() error {
	return r.ResponseError
}

func (r ActorResponseMixIn) HasResponseError() bool {
	return r.ResponseError != nil
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}

// Config entry lifecycle

type SetupEntryRequest struct {
	ActorRequestMixIn
	Entry ConfigEntry
}

type SetupEntryResponse struct {
	ActorResponseMixIn
}

type UnloadEntryRequest struct {
	ActorRequestMixIn
	EntryId string
	// Remove retracts the entities from the platform, used when the entry is
	// deleted rather than reloaded.
	Remove bool
}

type UnloadEntryResponse struct {
	ActorResponseMixIn
	EntryId  string
	Unloaded bool
}

type ReloadEntryRequest struct {
	ActorRequestMixIn
	EntryId string
}

type ReloadEntryResponse struct {
	ActorResponseMixIn
}

type UpdateOptionsRequest struct {
	ActorRequestMixIn
	EntryId string
	Options EntryOptions
}

type RefreshRequest struct {
	ActorRequestMixIn
}

type RefreshResponse struct {
	ActorResponseMixIn
	Success bool
}

// RepublishRequest asks a loaded entry to send its discovery and cached
// states again, after the broker connection was (re)established.
type RepublishRequest struct {
	ActorRequestMixIn
}

type EntryStateRequest struct {
	ActorRequestMixIn
}

type EntryStateResponse struct {
	ActorResponseMixIn
	EntryId  string
	State    string
	SerialNo string
}

// EntryStatesRequest asks the master for the state of every loaded entry.
type EntryStatesRequest struct {
	ActorRequestMixIn
}

type EntryStatesResponse struct {
	ActorResponseMixIn
	States []EntryStateResponse
}

// MQTT

type PublishSensorUpdateRequest struct {
	ActorRequestMixIn
	Retain bool
	Event  SensorUpdateEvent
}

type PublishSensorUpdateResponse struct {
	ActorResponseMixIn
}

type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors  []GenericSensor
	Switches []GenericSwitch
}

type RemoveDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors  []GenericSensor
	Switches []GenericSwitch
}
