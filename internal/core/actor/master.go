package actor

import (
	"errors"
	"fmt"
	"sort"
	"time"

	adactor "github.com/berfenger/enasolar2mqtt/internal/adapter/actor"
	"github.com/berfenger/enasolar2mqtt/internal/config"
	"github.com/berfenger/enasolar2mqtt/internal/core/domain"
	"github.com/berfenger/enasolar2mqtt/internal/core/flow"
	"github.com/berfenger/enasolar2mqtt/internal/core/integration"
	"github.com/berfenger/enasolar2mqtt/internal/mqtt"
	. "github.com/berfenger/enasolar2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

const (
	ENTRY_STATE_UNKNOWN = "unknown"

	DEFAULT_UNLOAD_TIMEOUT = 5 * time.Second
)

type MQTTActorProvider func(*eventstream.EventStream) actor.Actor

type MasterActor struct {
	config   config.Config
	behavior actor.Behavior
	stash    *Stash

	currentHealthCheck healthCheckResult
	eventStream        *eventstream.EventStream
	runtime            *integration.Runtime
	flows              *flow.Manager
	mqttActor          *actor.PID
	mqttActorProvider  MQTTActorProvider
	coordinators       map[string]*actor.PID
	unloadTimeout      time.Duration
	logger             *zap.Logger
}

type healthCheckResult struct {
	expected  int
	received  int
	unhealthy []string
	respondTo *actor.PID
}

func NewMasterActor(config config.Config, eventStream *eventstream.EventStream, runtime *integration.Runtime, flows *flow.Manager, mqttActorProvider MQTTActorProvider, logger *zap.Logger) *MasterActor {
	act := &MasterActor{
		config:            config,
		behavior:          actor.NewBehavior(),
		stash:             &Stash{},
		logger:            ActorLogger(domain.ACTOR_ID_MASTER, logger),
		eventStream:       eventStream,
		runtime:           runtime,
		flows:             flows,
		mqttActorProvider: mqttActorProvider,
		coordinators:      map[string]*actor.PID{},
		unloadTimeout:     DEFAULT_UNLOAD_TIMEOUT,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MasterActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MasterActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("master@starting started")

		// start MQTT child
		mqttActorPID, err := state.startMQTTActor(ctx)
		if err != nil {
			panic(err)
		}
		state.mqttActor = mqttActorPID

		// start a coordinator per stored config entry
		for _, entry := range state.flows.Entries().List() {
			if _, err := state.startCoordinatorActor(ctx, entry); err != nil {
				state.logger.Error("master@starting could not start coordinator", zap.String("entry_id", entry.EntryId), zap.Error(err))
			}
		}

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("master@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("master@default ActorHealthRequest")
		state.currentHealthCheck.reset()
		state.currentHealthCheck.respondTo = ctx.Sender()
		state.currentHealthCheck.expected = 1 + len(state.coordinators)
		// MQTT Actor Request
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MQTT,
				Healthy: false,
			}
		})
		// Coordinator Actor Requests
		for entryId, pid := range state.coordinators {
			id := fmt.Sprintf("%s/%s", domain.ACTOR_ID_COORDINATOR, entryId)
			PipeToSelfWithRecover(ctx, ctx.RequestFuture(pid, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
				return domain.ActorHealthResponse{
					Id:      id,
					Healthy: false,
				}
			})
		}

		ctx.SetReceiveTimeout(1 * time.Second)

		state.behavior.BecomeStacked(state.HealthCheckReceive)
	case adactor.MQTTReady:
		state.logger.Debug("master@default MQTTReady")
		if state.config.MQTT.HADiscoveryEnable {
			ctx.Send(state.mqttActor, domain.PublishDiscoveryRequest{
				Sensors: domain.BridgeSensors(domain.BridgeDevice(state.config.MQTT.BaseTopic)),
			})
		}
		for _, pid := range state.coordinators {
			ctx.Send(pid, domain.RepublishRequest{})
		}
	case adactor.ParsedCommand:
		state.logger.Debug("master@default parsedCommand", zap.Any("command", msg.Command))
		if msg.Command != nil {
			state.handleCommand(ctx, *msg.Command)
		}
	case domain.SetupEntryRequest:
		state.logger.Debug("master@default SetupEntryRequest", zap.String("entry_id", msg.Entry.EntryId))
		_, err := state.startCoordinatorActor(ctx, msg.Entry)
		ForRequest(msg).Respond(ctx, domain.SetupEntryResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{
				ResponseError: err,
			},
		})
	case domain.UnloadEntryRequest:
		state.logger.Debug("master@default UnloadEntryRequest", zap.String("entry_id", msg.EntryId))
		replyTo := ForRequest(msg).ReplyTo(ctx)
		state.unloadEntry(ctx, msg.EntryId, msg.Remove, func(resp domain.UnloadEntryResponse) {
			if replyTo != nil {
				ctx.Send(replyTo, resp)
			}
		})
	case domain.ReloadEntryRequest:
		state.logger.Debug("master@default ReloadEntryRequest", zap.String("entry_id", msg.EntryId))
		replyTo := ForRequest(msg).ReplyTo(ctx)
		entryId := msg.EntryId
		state.unloadEntry(ctx, entryId, false, func(resp domain.UnloadEntryResponse) {
			var err error
			entry, getErr := state.flows.Entries().Get(entryId)
			if getErr != nil {
				err = getErr
			} else {
				_, err = state.startCoordinatorActor(ctx, entry)
			}
			if err != nil {
				state.logger.Error("master@default reload failed", zap.String("entry_id", entryId), zap.Error(err))
			}
			if replyTo != nil {
				ctx.Send(replyTo, domain.ReloadEntryResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				})
			}
		})
	case domain.UpdateOptionsRequest:
		state.logger.Debug("master@default UpdateOptionsRequest", zap.String("entry_id", msg.EntryId))
		// the options listener takes care of the reload
		_, err := state.flows.UpdateOptions(msg.EntryId, msg.Options)
		if err != nil {
			state.logger.Error("master@default could not update options", zap.String("entry_id", msg.EntryId), zap.Error(err))
		}
	case domain.EntryStatesRequest:
		state.logger.Debug("master@default EntryStatesRequest")
		state.gatherEntryStates(ctx, ForRequest(msg).ReplyTo(ctx))
	case *actor.Terminated:
		// if the MQTT actor gives up, terminate
		if state.mqttActor != nil && msg.Who.Equal(state.mqttActor) {
			state.logger.Error("master@default mqtt terminated")
			panic(errors.New("mqtt terminated"))
		}
	default:
		state.logger.Debug("master@default unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MasterActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// if some actor does not respond to healthCheck, assume not healthy
		ctx.CancelReceiveTimeout()
		state.currentHealthCheck.respond(ctx)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy), zap.String("state", msg.State))
		state.currentHealthCheck.received++
		if !msg.Healthy {
			state.currentHealthCheck.unhealthy = append(state.currentHealthCheck.unhealthy, msg.Id)
		}
		if state.currentHealthCheck.allReceived() {
			ctx.CancelReceiveTimeout()
			state.currentHealthCheck.respond(ctx)

			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		} else {
			ctx.SetReceiveTimeout(1 * time.Second)
		}
	default:
		state.logger.Debug("master@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

// handleCommand applies a no_sun switch command to the entry owning it.
func (state *MasterActor) handleCommand(ctx actor.Context, cmd mqtt.ParsedMQTTCommand) {
	if cmd.Command != mqtt.COMMAND_SWITCH {
		return
	}
	for _, entryId := range state.runtime.EntryIds() {
		ec, ok := state.runtime.Get(entryId)
		if !ok || domain.NoSunSwitch(ec.Platform.Device()).Id != cmd.EntityId {
			continue
		}
		value, err := cmd.SwitchValue()
		if err != nil {
			state.logger.Warn("master@default invalid switch command", zap.String("switch", cmd.EntityId), zap.Error(err))
			return
		}
		options := ec.Entry.Options
		options.NoSun = value
		ctx.Send(ctx.Self(), domain.UpdateOptionsRequest{
			EntryId: entryId,
			Options: options,
		})
		return
	}
	state.logger.Debug("master@default command for unknown switch", zap.String("switch", cmd.EntityId))
}

func (state *MasterActor) unloadEntry(ctx actor.Context, entryId string, remove bool, then func(domain.UnloadEntryResponse)) {
	pid, ok := state.coordinators[entryId]
	if !ok {
		then(domain.UnloadEntryResponse{EntryId: entryId})
		return
	}
	delete(state.coordinators, entryId)
	ctx.ReenterAfter(ctx.RequestFuture(pid, domain.UnloadEntryRequest{EntryId: entryId, Remove: remove}, state.unloadTimeout), func(res any, err error) {
		resp, ok := res.(domain.UnloadEntryResponse)
		if err != nil || !ok {
			state.logger.Warn("master@default coordinator did not unload, releasing entry", zap.String("entry_id", entryId), zap.Error(err))
			resp = state.releaseEntry(ctx, entryId, remove)
			if !resp.Unloaded {
				resp.ResponseError = err
			}
		}
		ctx.Stop(pid)
		then(resp)
	})
}

// releaseEntry unloads an entry on behalf of an unresponsive coordinator.
func (state *MasterActor) releaseEntry(ctx actor.Context, entryId string, remove bool) domain.UnloadEntryResponse {
	resp := domain.UnloadEntryResponse{EntryId: entryId}
	ec, ok := state.runtime.Get(entryId)
	if !ok {
		return resp
	}
	resp.Unloaded = state.runtime.Release(ec)
	if remove {
		platform := ec.Platform
		if state.mqttActor != nil {
			ctx.Send(state.mqttActor, domain.RemoveDiscoveryRequest{
				Sensors:  platform.Sensors(),
				Switches: []domain.GenericSwitch{domain.NoSunSwitch(platform.Device())},
			})
		}
		state.eventStream.Publish(domain.EntryRemovedEvent{
			EntryId:  entryId,
			DeviceId: platform.Device().Id,
		})
	}
	return resp
}

func (state *MasterActor) gatherEntryStates(ctx actor.Context, replyTo *actor.PID) {
	pending := len(state.coordinators)
	states := make([]domain.EntryStateResponse, 0, pending)
	respond := func() {
		sort.Slice(states, func(i, j int) bool {
			return states[i].EntryId < states[j].EntryId
		})
		if replyTo != nil {
			ctx.Send(replyTo, domain.EntryStatesResponse{States: states})
		}
	}
	if pending == 0 {
		respond()
		return
	}
	for entryId, pid := range state.coordinators {
		id := entryId
		ctx.ReenterAfter(ctx.RequestFuture(pid, domain.EntryStateRequest{}, 2*time.Second), func(res any, err error) {
			if resp, ok := res.(domain.EntryStateResponse); ok && err == nil {
				states = append(states, resp)
			} else {
				states = append(states, domain.EntryStateResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
					EntryId: id,
					State:   ENTRY_STATE_UNKNOWN,
				})
			}
			pending--
			if pending == 0 {
				respond()
			}
		})
	}
}

func (state *MasterActor) startMQTTActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := BackoffSupervisor(10*time.Second, 1*time.Second)

	mqttProps := actor.PropsFromProducer(func() actor.Actor {
		return state.mqttActorProvider(state.eventStream)
	}, actor.WithSupervisor(supervisor))
	mqttActorPID, err := ctx.SpawnNamed(mqttProps, domain.ACTOR_ID_MQTT)
	if err != nil {
		return nil, err
	}

	return mqttActorPID, nil
}

func (state *MasterActor) startCoordinatorActor(ctx actor.Context, entry domain.ConfigEntry) (*actor.PID, error) {
	if _, ok := state.coordinators[entry.EntryId]; ok {
		return nil, fmt.Errorf("config entry %s is already loaded", entry.EntryId)
	}

	supervisor := RestartingSupervisor(state.logger.With(zap.String("entry_id", entry.EntryId)), 1, 10*time.Second)

	cfg := &state.config
	coordinatorProps := actor.PropsFromProducer(func() actor.Actor {
		return NewCoordinatorActor(cfg, entry, state.runtime, state.mqttActor, state.eventStream, state.logger)
	}, actor.WithSupervisor(supervisor))
	pid := ctx.SpawnPrefix(coordinatorProps, domain.ACTOR_ID_COORDINATOR)
	state.coordinators[entry.EntryId] = pid

	return pid, nil
}

func (state *healthCheckResult) reset() {
	state.expected = 0
	state.received = 0
	state.unhealthy = nil
	state.respondTo = nil
}

func (state *healthCheckResult) allReceived() bool {
	return state.received >= state.expected
}

func (state *healthCheckResult) allHealthy() bool {
	return state.allReceived() && len(state.unhealthy) == 0
}

func (state *healthCheckResult) respond(ctx actor.Context) {
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MASTER,
		Healthy: state.allHealthy(),
	}
	if len(state.unhealthy) > 0 {
		resp.State = fmt.Sprintf("unhealthy: %v", state.unhealthy)
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}
