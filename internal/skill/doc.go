// Package skill implements the Bluetooth voice skill: the intent router,
// the command dispatcher, and the bus service that feeds them.
//
// An intent is resolved to a site through the site store, then either
// answered from the cache (paired, connected, discovered devices) or turned
// into a command for that site's satellite. Commands are registered with the
// correlation tracker before they are published; the satellite's answers on
// bluetooth/answer/{action} consume those registrations and produce the
// spoken notification and the cache update. Answers nothing waits for are
// dropped with a log line.
//
// # Usage
//
//	svc, err := skill.New(skill.Options{
//	    Config:  cfg.Skill,
//	    QoS:     mqttClient.QoS(),
//	    MQTT:    mqttClient,
//	    Store:   store,
//	    Tracker: tracker,
//	    Logger:  log,
//	})
//	if err != nil {
//	    return err
//	}
//	if err := svc.Start(ctx); err != nil {
//	    return err
//	}
//	defer svc.Stop()
package skill
