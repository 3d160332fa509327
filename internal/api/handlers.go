// Package api отдаёт состояние бота по HTTP: только чтение, без управления.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/pv/gameserver-status-bot/internal/bot"
	"github.com/pv/gameserver-status-bot/internal/poller"
)

// TickSource состояние тиков бота
type TickSource interface {
	Status(name string) bot.TickState
}

// SchedulerSource состояние планировщика
type SchedulerSource interface {
	Running() bool
	Stats(name string) (poller.TriggerStats, bool)
}

type Handlers struct {
	ticks     TickSource
	scheduler SchedulerSource
	names     []string
	started   time.Time

	// UnhealthyAfter число подряд неудачных тиков, после которого /healthz отвечает 503
	UnhealthyAfter int
}

func NewHandlers(ticks TickSource, scheduler SchedulerSource, names ...string) *Handlers {
	return &Handlers{
		ticks:          ticks,
		scheduler:      scheduler,
		names:          names,
		started:        time.Now(),
		UnhealthyAfter: 5,
	}
}

// Routes регистрирует обработчики
func (h *Handlers) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.Health)
	mux.HandleFunc("GET /api/status", h.GetStatus)
	mux.HandleFunc("GET /api/triggers/{name}", h.GetTrigger)
	return mux
}

func (h *Handlers) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// TriggerView тик бота вместе со статистикой планировщика
type TriggerView struct {
	bot.TickState
	Scheduler *poller.TriggerStats `json:"scheduler,omitempty"`
}

func (h *Handlers) view(name string) TriggerView {
	v := TriggerView{TickState: h.ticks.Status(name)}
	if st, ok := h.scheduler.Stats(name); ok {
		v.Scheduler = &st
	}
	return v
}

// GetStatus возвращает состояние всех триггеров
// GET /api/status
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	triggers := make([]TriggerView, 0, len(h.names))
	for _, name := range h.names {
		triggers = append(triggers, h.view(name))
	}

	h.writeJSON(w, map[string]interface{}{
		"running":  h.scheduler.Running(),
		"uptime":   time.Since(h.started).Round(time.Second).String(),
		"triggers": triggers,
	})
}

// GetTrigger возвращает состояние одного триггера
// GET /api/triggers/{name}
func (h *Handlers) GetTrigger(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" {
		h.writeError(w, http.StatusBadRequest, "trigger name required")
		return
	}
	if _, ok := h.scheduler.Stats(name); !ok {
		h.writeError(w, http.StatusNotFound, "unknown trigger: "+name)
		return
	}
	h.writeJSON(w, h.view(name))
}

// Health 200 пока планировщик работает и ни один тик не падает UnhealthyAfter раз подряд
// GET /healthz
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if !h.scheduler.Running() {
		h.writeError(w, http.StatusServiceUnavailable, "scheduler stopped")
		return
	}
	if h.UnhealthyAfter > 0 {
		for _, name := range h.names {
			st := h.ticks.Status(name)
			if st.ConsecutiveFailures >= h.UnhealthyAfter {
				h.writeError(w, http.StatusServiceUnavailable, name+": "+st.LastError)
				return
			}
		}
	}
	h.writeJSON(w, map[string]string{"status": "ok"})
}
