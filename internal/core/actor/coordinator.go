package actor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/enasolar2mqtt/internal/config"
	"github.com/berfenger/enasolar2mqtt/internal/core/domain"
	"github.com/berfenger/enasolar2mqtt/internal/core/integration"
	"github.com/berfenger/enasolar2mqtt/internal/core/sensor"
	. "github.com/berfenger/enasolar2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"github.com/reugn/go-quartz/quartz"
	"go.uber.org/zap"
)

const (
	COORDINATOR_STATE_SETTING_UP  = "setting_up"
	COORDINATOR_STATE_SETUP_RETRY = "setup_retry"
	COORDINATOR_STATE_SETUP_ERROR = "setup_error"
	COORDINATOR_STATE_LOADED      = "loaded"
	COORDINATOR_STATE_UNLOADED    = "unloaded"

	// every day at 00:00:00
	MIDNIGHT_CRON = "0 0 0 * * *"

	MIN_SETUP_TIMEOUT = 10 * time.Second
)

// CoordinatorActor owns one config entry: it sets it up, polls it and
// tears it down.
type CoordinatorActor struct {
	ActorWithStates
	scheduler   *scheduler.TimerScheduler
	stash       *Stash
	config      *config.Config
	entry       domain.ConfigEntry
	runtime     *integration.Runtime
	mqttActor   *actor.PID
	eventStream *eventstream.EventStream
	midnight    *quartz.CronTrigger

	entryContext   *integration.EntryContext
	cancelPoll     scheduler.CancelFunc
	cancelMidnight scheduler.CancelFunc
	cancelRetry    scheduler.CancelFunc

	// in-flight inverter calls
	cancelSetup    context.CancelFunc
	cancelRefresh  context.CancelFunc
	refreshing     bool
	pollDue        bool
	refreshWaiters []*actor.PID

	logger *zap.Logger
}

type coordinatorTick struct {
}

type midnightTick struct {
}

type setupRetryTick struct {
}

type setupResult struct {
	entryContext *integration.EntryContext
	err          error
}

type refreshDone struct {
	entryContext *integration.EntryContext
	result       sensor.RefreshResult
}

func NewCoordinatorActor(config *config.Config, entry domain.ConfigEntry, runtime *integration.Runtime, mqttActor *actor.PID, eventStream *eventstream.EventStream, logger *zap.Logger) *CoordinatorActor {
	act := &CoordinatorActor{
		config:      config,
		entry:       entry,
		runtime:     runtime,
		mqttActor:   mqttActor,
		eventStream: eventStream,
		stash:       &Stash{},
		logger:      ActorLogger(domain.ACTOR_ID_COORDINATOR, logger).With(zap.String("entry_id", entry.EntryId)),
		ActorWithStates: ActorWithStates{
			Behavior: actor.NewBehavior(),
		},
	}
	act.Become(CSettingUpState{
		actor: act,
	})
	return act
}

func (state *CoordinatorActor) Receive(ctx actor.Context) {
	switch ctx.Message().(type) {
	case *actor.Stopping, *actor.Restarting:
		state.release()
	}
	state.Behavior.Receive(ctx)
}

// Setting up state

type CSettingUpState struct {
	ActorState
	actor *CoordinatorActor
}

func (state CSettingUpState) Name() string {
	return COORDINATOR_STATE_SETTING_UP
}

func (state CSettingUpState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.actor.logger.Debug("coordinator@setting_up started")
		state.actor.scheduler = scheduler.NewTimerScheduler(ctx)
		midnight, err := quartz.NewCronTriggerWithLoc(MIDNIGHT_CRON, time.Local)
		if err != nil {
			panic(err)
		}
		state.actor.midnight = midnight
		state.OnEnterAction(ctx)
	case setupResult:
		state.actor.cancelSetup = nil
		state.actor.handleSetupResult(ctx, msg)
	case domain.ActorHealthRequest, domain.EntryStateRequest, domain.UnloadEntryRequest:
		state.actor.handleCommon(ctx)
	case *actor.Stopping, *actor.Stopped, *actor.Restarting:
	default:
		state.actor.logger.Debug("coordinator@setting_up: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

func (state CSettingUpState) OnEnterAction(ctx actor.Context) CSettingUpState {
	entry := state.actor.entry
	runtime := state.actor.runtime
	timeout := state.actor.setupTimeout()
	// the entry is registered only once the result is accepted
	state.actor.cancelSetup = NewBackgroundTask(ctx, func(c context.Context) (setupResult, error) {
		ec, err := runtime.Prepare(c, entry)
		if err != nil {
			return setupResult{}, err
		}
		return setupResult{entryContext: ec}, nil
	}).WithTimeout(timeout).Recover(func(err error) setupResult {
		return setupResult{err: err}
	}).Start(ctx.Self())
	return state
}

// Setup retry state, the inverter was not reachable

type CSetupRetryState struct {
	ActorState
	actor *CoordinatorActor
	err   error
}

func (state CSetupRetryState) Name() string {
	return COORDINATOR_STATE_SETUP_RETRY
}

func (state CSetupRetryState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case setupRetryTick:
		state.actor.logger.Debug("coordinator@setup_retry retrying")
		state.actor.cancelRetry = nil
		state.actor.Become(CSettingUpState{
			actor: state.actor,
		}.OnEnterAction(ctx))
	case domain.RefreshRequest:
		ctx.Respond(domain.RefreshResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{
				ResponseError: state.err,
			},
		})
	case domain.ActorHealthRequest, domain.EntryStateRequest, domain.UnloadEntryRequest:
		state.actor.handleCommon(ctx)
	default:
		state.actor.logger.Debug("coordinator@setup_retry: recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state CSetupRetryState) OnEnter(ctx actor.Context) CSetupRetryState {
	state.actor.cancelRetry = state.actor.scheduler.SendOnce(state.actor.config.Coordinator.SetupRetry(), ctx.Self(), setupRetryTick{})
	return state
}

// Setup error state, the entry cannot be loaded until it is reloaded

type CSetupErrorState struct {
	ActorState
	actor *CoordinatorActor
	err   error
}

func (state CSetupErrorState) Name() string {
	return COORDINATOR_STATE_SETUP_ERROR
}

func (state CSetupErrorState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.RefreshRequest:
		ctx.Respond(domain.RefreshResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{
				ResponseError: state.err,
			},
		})
	case domain.ActorHealthRequest, domain.EntryStateRequest, domain.UnloadEntryRequest:
		state.actor.handleCommon(ctx)
	default:
		state.actor.logger.Debug("coordinator@setup_error: recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// Loaded state

type CLoadedState struct {
	ActorState
	actor *CoordinatorActor
}

func (state CLoadedState) Name() string {
	return COORDINATOR_STATE_LOADED
}

func (state CLoadedState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case coordinatorTick:
		state.actor.logger.Debug("coordinator@loaded tick")
		state.actor.cancelPoll = nil
		state.actor.pollDue = true
		state.actor.startRefresh(ctx)
	case midnightTick:
		state.actor.logger.Debug("coordinator@loaded midnight")
		state.actor.cancelMidnight = nil
		state.actor.startRefresh(ctx)
		state.actor.scheduleMidnight(ctx, time.Now())
	case domain.RefreshRequest:
		state.actor.logger.Debug("coordinator@loaded RefreshRequest")
		if replyTo := ForRequest(msg).ReplyTo(ctx); replyTo != nil {
			state.actor.refreshWaiters = append(state.actor.refreshWaiters, replyTo)
		}
		state.actor.startRefresh(ctx)
	case refreshDone:
		state.actor.handleRefreshDone(ctx, msg)
	case domain.RepublishRequest:
		state.actor.logger.Debug("coordinator@loaded RepublishRequest")
		state.actor.publishDiscovery(ctx)
		state.actor.publishNoSunState()
		state.actor.entryContext.Platform.Republish()
	case domain.ActorHealthRequest, domain.EntryStateRequest, domain.UnloadEntryRequest:
		state.actor.handleCommon(ctx)
	default:
		state.actor.logger.Debug("coordinator@loaded: recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state CLoadedState) OnEnter(ctx actor.Context) CLoadedState {
	// first refresh right away, then on the poll interval
	ctx.Send(ctx.Self(), coordinatorTick{})
	state.actor.scheduleMidnight(ctx, time.Now())
	return state
}

// Unloaded state

type CUnloadedState struct {
	ActorState
	actor *CoordinatorActor
}

func (state CUnloadedState) Name() string {
	return COORDINATOR_STATE_UNLOADED
}

func (state CUnloadedState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest, domain.EntryStateRequest, domain.UnloadEntryRequest:
		state.actor.handleCommon(ctx)
	case domain.RefreshRequest:
		ctx.Respond(domain.RefreshResponse{})
	case setupResult, refreshDone:
		// late outcome of a call cancelled by the unload
	default:
		state.actor.logger.Debug("coordinator@unloaded: recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// Other actor function helpers

func (state *CoordinatorActor) handleSetupResult(ctx actor.Context, msg setupResult) {
	if msg.err != nil {
		if errors.Is(msg.err, integration.ErrConfigEntryNotReady) {
			state.logger.Warn("coordinator@setting_up entry not ready", zap.Error(msg.err), zap.Duration("retry_in", state.config.Coordinator.SetupRetry()))
			state.Become(CSetupRetryState{
				actor: state,
				err:   msg.err,
			}.OnEnter(ctx))
		} else {
			state.logger.Error("coordinator@setting_up entry setup failed", zap.Error(msg.err))
			state.Become(CSetupErrorState{
				actor: state,
				err:   msg.err,
			})
		}
		state.stash.UnstashAll(ctx)
		return
	}

	state.entryContext = msg.entryContext
	state.runtime.Register(state.entryContext)
	eventStream := state.eventStream
	state.entryContext.Platform.SetPublisher(sensor.PublisherFunc(func(event domain.SensorUpdateEvent) {
		eventStream.Publish(event)
	}))
	state.publishDiscovery(ctx)
	state.publishNoSunState()

	state.Become(CLoadedState{
		actor: state,
	}.OnEnter(ctx))
	state.stash.UnstashAll(ctx)
}

func (state *CoordinatorActor) handleCommon(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      fmt.Sprintf("%s/%s", domain.ACTOR_ID_COORDINATOR, state.entry.EntryId),
			Healthy: state.StateName() != COORDINATOR_STATE_SETUP_ERROR,
			State:   state.StateName(),
		})
	case domain.EntryStateRequest:
		resp := domain.EntryStateResponse{
			EntryId: state.entry.EntryId,
			State:   state.StateName(),
		}
		if state.entryContext != nil {
			resp.SerialNo = state.entryContext.SerialNo()
		}
		ctx.Respond(resp)
	case domain.UnloadEntryRequest:
		state.logger.Debug("coordinator UnloadEntryRequest", zap.Bool("remove", msg.Remove))
		unloaded := state.unload(ctx, msg.Remove)
		ForRequest(msg).Respond(ctx, domain.UnloadEntryResponse{
			EntryId:  state.entry.EntryId,
			Unloaded: unloaded,
		})
	}
}

func (state *CoordinatorActor) unload(ctx actor.Context, remove bool) bool {
	if state.StateName() == COORDINATOR_STATE_UNLOADED {
		return false
	}
	ec := state.entryContext
	unloaded := state.release()
	if remove && ec != nil {
		platform := ec.Platform
		state.mqttSend(ctx, domain.RemoveDiscoveryRequest{
			Sensors:  platform.Sensors(),
			Switches: []domain.GenericSwitch{domain.NoSunSwitch(platform.Device())},
		})
		state.eventStream.Publish(domain.EntryRemovedEvent{
			EntryId:  state.entry.EntryId,
			DeviceId: platform.Device().Id,
		})
	}
	for _, waiter := range state.refreshWaiters {
		ctx.Send(waiter, domain.RefreshResponse{})
	}
	state.refreshWaiters = nil
	state.Become(CUnloadedState{
		actor: state,
	})
	state.stash.UnstashAll(ctx)
	return unloaded
}

// release cancels every timer and inverter call and drops the entry from
// the runtime. It reports whether the entry was registered.
func (state *CoordinatorActor) release() bool {
	state.cancelTimers()
	for _, cancel := range []context.CancelFunc{state.cancelSetup, state.cancelRefresh} {
		if cancel != nil {
			cancel()
		}
	}
	state.cancelSetup = nil
	state.cancelRefresh = nil
	state.refreshing = false
	state.pollDue = false

	ec := state.entryContext
	state.entryContext = nil
	if ec == nil {
		return false
	}
	ec.Platform.SetPublisher(nil)
	return state.runtime.Release(ec)
}

// startRefresh polls the inverter off the actor goroutine, at most one poll
// runs at a time and refreshDone carries its outcome back.
func (state *CoordinatorActor) startRefresh(ctx actor.Context) {
	if state.refreshing {
		return
	}
	state.refreshing = true
	ec := state.entryContext
	state.cancelRefresh = NewBackgroundTask(ctx, func(c context.Context) (refreshDone, error) {
		return refreshDone{
			entryContext: ec,
			result:       ec.Coordinator.Poll(c, time.Now()),
		}, nil
	}).WithTimeout(state.refreshTimeout()).Start(ctx.Self())
}

func (state *CoordinatorActor) handleRefreshDone(ctx actor.Context, msg refreshDone) {
	if msg.entryContext != state.entryContext {
		return
	}
	state.refreshing = false
	state.cancelRefresh = nil

	result := msg.result
	state.entryContext.Coordinator.Notify(result)
	if result.SunDown {
		state.logger.Debug("coordinator refresh skipped, sun is down")
	} else if !result.Success() {
		state.logger.Warn("coordinator refresh failed", zap.Bool("meters_failed", result.MetersFailed), zap.Bool("data_failed", result.DataFailed))
	}

	for _, waiter := range state.refreshWaiters {
		ctx.Send(waiter, domain.RefreshResponse{
			Success: result.Success(),
		})
	}
	state.refreshWaiters = nil

	// the poll interval runs from the end of the previous poll
	if state.pollDue {
		state.pollDue = false
		state.schedulePoll(ctx)
	}
}

func (state *CoordinatorActor) schedulePoll(ctx actor.Context) {
	interval := state.config.Coordinator.PollInterval()
	if interval <= 0 {
		interval = sensor.DEFAULT_POLL_INTERVAL
	}
	state.cancelPoll = state.scheduler.SendOnce(interval, ctx.Self(), coordinatorTick{})
}

func (state *CoordinatorActor) scheduleMidnight(ctx actor.Context, now time.Time) {
	next, err := state.midnight.NextFireTime(now.UnixNano())
	if err != nil {
		state.logger.Error("coordinator could not schedule midnight refresh", zap.Error(err))
		return
	}
	delay := time.Until(time.Unix(0, next))
	state.cancelMidnight = state.scheduler.SendOnce(delay, ctx.Self(), midnightTick{})
}

func (state *CoordinatorActor) cancelTimers() {
	for _, cancel := range []scheduler.CancelFunc{state.cancelPoll, state.cancelMidnight, state.cancelRetry} {
		if cancel != nil {
			cancel()
		}
	}
	state.cancelPoll = nil
	state.cancelMidnight = nil
	state.cancelRetry = nil
}

func (state *CoordinatorActor) publishDiscovery(ctx actor.Context) {
	if !state.config.MQTT.HADiscoveryEnable {
		return
	}
	platform := state.entryContext.Platform
	state.mqttSend(ctx, domain.PublishDiscoveryRequest{
		Sensors:  platform.Sensors(),
		Switches: []domain.GenericSwitch{domain.NoSunSwitch(platform.Device())},
	})
}

func (state *CoordinatorActor) publishNoSunState() {
	device := state.entryContext.Platform.Device()
	state.eventStream.Publish(domain.SwitchSensorUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{
			DeviceId: device.Id,
			Id:       domain.NoSunSwitch(device).Id,
		},
		Value: state.entry.Options.NoSun,
	})
}

func (state *CoordinatorActor) mqttSend(ctx actor.Context, msg any) {
	if state.mqttActor != nil {
		ctx.Send(state.mqttActor, msg)
	}
}

func (state *CoordinatorActor) setupTimeout() time.Duration {
	// one interrogation is a settings read plus a meters read
	timeout := 2 * state.config.Inverter.Timeout()
	if timeout < MIN_SETUP_TIMEOUT {
		timeout = MIN_SETUP_TIMEOUT
	}
	return timeout
}

func (state *CoordinatorActor) refreshTimeout() time.Duration {
	return state.setupTimeout()
}
