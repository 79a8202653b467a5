package skill

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/MrJohnZoidberg/Snips-Bluetooth/internal/correlation"
	"github.com/MrJohnZoidberg/Snips-Bluetooth/internal/infrastructure/config"
	"github.com/MrJohnZoidberg/Snips-Bluetooth/internal/infrastructure/mqtt"
	"github.com/MrJohnZoidberg/Snips-Bluetooth/internal/protocol"
	"github.com/MrJohnZoidberg/Snips-Bluetooth/internal/site"
)

// MQTTClient is the bus connection the service needs.
// *mqtt.Client satisfies it.
type MQTTClient interface {
	Publisher

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte) error) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// Options holds configuration for creating a Service.
type Options struct {
	Config config.SkillConfig

	// QoS is used for subscriptions and publishes.
	QoS byte

	MQTT    MQTTClient
	Store   *site.Store
	Tracker *correlation.Tracker

	// Recorder, Telemetry and Notifier are optional.
	Recorder  OutcomeRecorder
	Telemetry Telemetry
	Notifier  Notifier

	Logger Logger
}

// Service connects the router and dispatcher to the bus.
//
// Handlers run on the service's inbox goroutine, one message at a time in
// arrival order, so handlers may publish and wait without stalling delivery.
type Service struct {
	mqtt       MQTTClient
	qos        byte
	topics     mqtt.Topics
	inbox      *mqtt.Inbox
	tracker    *correlation.Tracker
	router     *Router
	dispatcher *Dispatcher
	logger     Logger

	wg       sync.WaitGroup
	cancel   context.CancelFunc
	stopOnce sync.Once
}

// New creates a service. Call Start to subscribe.
func New(opts Options) (*Service, error) {
	if opts.MQTT == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	topics := mqtt.Topics{IntentPrefix: opts.Config.IntentPrefix}

	dispatcher, err := NewDispatcher(DispatcherOptions{
		Store:           opts.Store,
		Tracker:         opts.Tracker,
		Publisher:       opts.MQTT,
		QoS:             opts.QoS,
		Topics:          topics,
		InjectionEntity: opts.Config.InjectionEntity,
		Recorder:        opts.Recorder,
		Telemetry:       opts.Telemetry,
		Notifier:        opts.Notifier,
		Logger:          logger,
	})
	if err != nil {
		return nil, err
	}

	router := NewRouter(opts.Store, dispatcher)
	router.SetLogger(logger)

	inbox := mqtt.NewInbox(opts.Config.QueueSize)
	inbox.SetLogger(logger)

	return &Service{
		mqtt:       opts.MQTT,
		qos:        opts.QoS,
		topics:     topics,
		inbox:      inbox,
		tracker:    opts.Tracker,
		router:     router,
		dispatcher: dispatcher,
		logger:     logger,
	}, nil
}

// Dispatcher returns the service's dispatcher.
func (s *Service) Dispatcher() *Dispatcher {
	return s.dispatcher
}

// Start subscribes to the intents, the injection result and every answer
// topic, starts the inbox and scan expiry, and asks all sites for their
// state.
func (s *Service) Start(ctx context.Context) error {
	for _, intent := range Intents {
		topic := s.topics.Intent(intent)
		if err := s.mqtt.Subscribe(topic, s.qos, s.inbox.Wrap(s.handleIntent)); err != nil {
			return fmt.Errorf("subscribe to %s: %w", topic, err)
		}
	}
	if err := s.mqtt.Subscribe(mqtt.TopicInjectionComplete, s.qos, s.inbox.Wrap(s.handleInjectionComplete)); err != nil {
		return fmt.Errorf("subscribe to injection results: %w", err)
	}
	if err := s.mqtt.Subscribe(s.topics.AllAnswers(), s.qos, s.inbox.Wrap(s.handleAnswer)); err != nil {
		return fmt.Errorf("subscribe to answers: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.inbox.Run(runCtx)
	}()
	go func() {
		defer s.wg.Done()
		s.tracker.Run(runCtx)
	}()

	s.logger.Info("skill started", "intents", len(Intents), "intent_prefix", s.topics.IntentPrefix)
	if err := s.Refresh(); err != nil {
		s.logger.Warn("initial site refresh failed", "error", err)
	}
	return nil
}

// Refresh asks every site for its current state. It is called on start and
// after every reconnect.
func (s *Service) Refresh() error {
	if !s.mqtt.IsConnected() {
		return mqtt.ErrNotConnected
	}
	return s.dispatcher.RefreshAllSites()
}

// Stop stops message handling and scan expiry.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()
		s.logger.Info("skill stopped", "dropped_messages", s.inbox.Dropped())
	})
}

func (s *Service) handleIntent(topic string, payload []byte) error {
	intent, ok := s.topics.IntentName(topic)
	if !ok {
		return fmt.Errorf("intent topic %q outside prefix %q", topic, s.topics.IntentPrefix)
	}

	msg, err := ParseIntent(payload)
	if errors.Is(err, ErrMalformedIntent) {
		return err
	}
	if err != nil {
		s.logger.Warn("ignoring slots", "intent", intent, "session_id", msg.SessionID, "error", err)
	}

	terminal := s.router.Route(intent, msg)
	s.logger.Info("intent handled",
		"intent", intent, "site_id", msg.SiteID, "session_id", msg.SessionID, "terminal", terminal.String())
	return nil
}

func (s *Service) handleInjectionComplete(_ string, payload []byte) error {
	var msg InjectionComplete
	if err := protocol.Decode(payload, &msg); err != nil {
		return err
	}
	return dropStale(s.dispatcher.OnInjectionComplete(msg.RequestID))
}

func (s *Service) handleAnswer(topic string, payload []byte) error {
	action, ok := s.topics.AnswerAction(topic)
	if !ok {
		return fmt.Errorf("unexpected answer topic %q", topic)
	}

	switch action {
	case mqtt.ActionSiteInfo:
		var info protocol.SiteInfo
		if err := protocol.Decode(payload, &info); err != nil {
			return err
		}
		return s.dispatcher.ApplySiteInfo(info)

	case mqtt.ActionDevicesDiscover:
		var ans protocol.DiscoverAnswer
		if err := protocol.Decode(payload, &ans); err != nil {
			return err
		}
		return dropStale(s.dispatcher.OnScanAck(ans.SiteID, ans.Result))

	case mqtt.ActionDevicesDiscovered:
		var ans protocol.DiscoveredAnswer
		if err := protocol.Decode(payload, &ans); err != nil {
			return err
		}
		return dropStale(s.dispatcher.DispatchDiscovered(ans.SiteID, protocol.Devices(ans.DiscoverableDevices)))
	}

	kind, ok := DeviceKind(action)
	if !ok {
		s.logger.Debug("ignoring answer", "action", action)
		return nil
	}
	ans, err := protocol.DecodeDeviceAnswer(payload)
	if err != nil {
		return err
	}
	return dropStale(s.dispatcher.OnDeviceCommandResult(kind, ans.SiteID, ans.Addr, ans.Result))
}

// dropStale hides stale results from the inbox; the dispatcher has already
// logged them.
func dropStale(err error) error {
	if IsStale(err) {
		return nil
	}
	return err
}
