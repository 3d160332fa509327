package bot

import "time"

// TickState состояние одного вида тиков
type TickState struct {
	Name                string    `json:"name"`
	LastRun             time.Time `json:"lastRun"`
	LastSuccess         time.Time `json:"lastSuccess"`
	LastError           string    `json:"lastError,omitempty"`
	Runs                int       `json:"runs"`
	ConsecutiveFailures int       `json:"consecutiveFailures"`
}

func (b *Bot) record(name string, at time.Time, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.status[name]
	if !ok {
		st = &TickState{Name: name}
		b.status[name] = st
	}

	st.Runs++
	st.LastRun = at
	if err != nil {
		st.LastError = err.Error()
		st.ConsecutiveFailures++
		return
	}
	st.LastError = ""
	st.LastSuccess = at
	st.ConsecutiveFailures = 0
}

// Status возвращает копию состояния тика
func (b *Bot) Status(name string) TickState {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if st, ok := b.status[name]; ok {
		return *st
	}
	return TickState{Name: name}
}
