package guard

import (
	"time"
)

// AlertRule names a condition evaluated over the service statistics.
// Monitoring collaborators register rules and poll Alerts.
type AlertRule struct {
	// Name identifies the rule; registering the same name replaces it.
	Name string

	// Message describes what firing means, for the collaborator's output.
	Message string

	// Condition reports whether the rule fires for the given snapshot.
	Condition func(Statistics) bool
}

// Alert is a rule that fired during an Alerts evaluation.
type Alert struct {
	Name        string
	Message     string
	TriggeredAt time.Time
}

// AddAlert registers a rule, replacing any rule with the same name.
// Rules without a condition are ignored.
func (s *Service) AddAlert(rule AlertRule) {
	if rule.Name == "" || rule.Condition == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.alerts[rule.Name]; !exists {
		s.alertKeys = append(s.alertKeys, rule.Name)
	}
	s.alerts[rule.Name] = rule
}

// RemoveAlert unregisters the rule with the given name.
func (s *Service) RemoveAlert(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.alerts, name)
	for i, n := range s.alertKeys {
		if n == name {
			s.alertKeys = append(s.alertKeys[:i], s.alertKeys[i+1:]...)
			break
		}
	}
}

// AlertNames returns the registered rule names in registration order.
func (s *Service) AlertNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, len(s.alertKeys))
	copy(names, s.alertKeys)
	return names
}

// Alerts evaluates every rule against the current statistics and returns
// those firing, in registration order.
func (s *Service) Alerts() []Alert {
	stats := s.Statistics()
	now := s.clock.Now()

	s.mu.Lock()
	rules := make([]AlertRule, 0, len(s.alertKeys))
	for _, name := range s.alertKeys {
		rules = append(rules, s.alerts[name])
	}
	s.mu.Unlock()

	var fired []Alert
	for _, rule := range rules {
		if rule.Condition(stats) {
			fired = append(fired, Alert{
				Name:        rule.Name,
				Message:     rule.Message,
				TriggeredAt: now,
			})
		}
	}
	return fired
}
