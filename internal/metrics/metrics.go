package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/carebridge/intake/internal/types"
)

// Metrics holds all application metrics
type Metrics struct {
	mu sync.RWMutex

	// Behavior event metrics
	EventsReceivedTotal   int64
	EventsProcessedTotal  int64
	EventProcessingErrors int64

	// WebSocket metrics
	WebSocketConnectionsTotal    int64
	WebSocketDisconnectionsTotal int64
	WebSocketMessagesTotal       int64
	WebSocketErrorsTotal         int64
	activeConnections            int64

	// Chat metrics
	ChatsStartedTotal int64
	ChatsEndedTotal   int64

	// Routing metrics
	RoutingResolvedTotal    int64
	RoutingFallbackTotal    int64 // over-capacity selections
	RoutingNoCandidateTotal int64

	// Engagement distribution of started chats
	chatsByLevel map[types.EngagementLevel]int64

	// HTTP metrics
	httpRequestsTotal    map[string]map[int]int64 // endpoint -> status -> count
	httpRequestDurations map[string][]float64     // endpoint -> durations

	startTime time.Time
}

// Global metrics instance
var instance *Metrics
var once sync.Once

// Get returns the singleton metrics instance
func Get() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			chatsByLevel:         make(map[types.EngagementLevel]int64),
			httpRequestsTotal:    make(map[string]map[int]int64),
			httpRequestDurations: make(map[string][]float64),
			startTime:            time.Now(),
		}
	})
	return instance
}

// RecordEventReceived increments the events received counter
func (m *Metrics) RecordEventReceived() {
	m.mu.Lock()
	m.EventsReceivedTotal++
	m.mu.Unlock()
}

// RecordEventProcessed increments the events processed counter
func (m *Metrics) RecordEventProcessed() {
	m.mu.Lock()
	m.EventsProcessedTotal++
	m.mu.Unlock()
}

// RecordEventError increments the event processing error counter
func (m *Metrics) RecordEventError() {
	m.mu.Lock()
	m.EventProcessingErrors++
	m.mu.Unlock()
}

// RecordWebSocketConnect increments connection counters
func (m *Metrics) RecordWebSocketConnect() {
	m.mu.Lock()
	m.WebSocketConnectionsTotal++
	m.activeConnections++
	m.mu.Unlock()
}

// RecordWebSocketDisconnect increments disconnection counter
func (m *Metrics) RecordWebSocketDisconnect() {
	m.mu.Lock()
	m.WebSocketDisconnectionsTotal++
	m.activeConnections--
	m.mu.Unlock()
}

// RecordWebSocketMessage increments message counter
func (m *Metrics) RecordWebSocketMessage() {
	m.mu.Lock()
	m.WebSocketMessagesTotal++
	m.mu.Unlock()
}

// RecordWebSocketError increments WebSocket error counter
func (m *Metrics) RecordWebSocketError() {
	m.mu.Lock()
	m.WebSocketErrorsTotal++
	m.mu.Unlock()
}

// RecordChatStarted tracks one started chat and its engagement level
func (m *Metrics) RecordChatStarted(level types.EngagementLevel) {
	m.mu.Lock()
	m.ChatsStartedTotal++
	m.chatsByLevel[level]++
	m.mu.Unlock()
}

// RecordChatEnded increments the ended chat counter
func (m *Metrics) RecordChatEnded() {
	m.mu.Lock()
	m.ChatsEndedTotal++
	m.mu.Unlock()
}

// RecordRoutingDecision tracks one routing resolution outcome
func (m *Metrics) RecordRoutingDecision(result types.RoutingResult) {
	m.mu.Lock()
	switch {
	case result.Executive == nil:
		m.RoutingNoCandidateTotal++
	case result.OverCapacity:
		m.RoutingResolvedTotal++
		m.RoutingFallbackTotal++
	default:
		m.RoutingResolvedTotal++
	}
	m.mu.Unlock()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(endpoint string, statusCode int, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.httpRequestsTotal[endpoint] == nil {
		m.httpRequestsTotal[endpoint] = make(map[int]int64)
	}
	m.httpRequestsTotal[endpoint][statusCode]++

	// Keep last 100 durations for percentile calculation
	if len(m.httpRequestDurations[endpoint]) >= 100 {
		m.httpRequestDurations[endpoint] = m.httpRequestDurations[endpoint][1:]
	}
	m.httpRequestDurations[endpoint] = append(m.httpRequestDurations[endpoint], duration.Seconds())
}

// GetActiveConnections returns current WebSocket connections
func (m *Metrics) GetActiveConnections() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeConnections
}

// Handler returns an HTTP handler for the /metrics endpoint
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.mu.RLock()
		defer m.mu.RUnlock()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		write := func(name string, value interface{}, labels ...string) {
			labelStr := ""
			if len(labels) > 0 {
				labelStr = "{"
				for i := 0; i < len(labels); i += 2 {
					if i > 0 {
						labelStr += ","
					}
					labelStr += labels[i] + "=\"" + labels[i+1] + "\""
				}
				labelStr += "}"
			}

			switch v := value.(type) {
			case int:
				w.Write([]byte(name + labelStr + " " + strconv.Itoa(v) + "\n"))
			case int64:
				w.Write([]byte(name + labelStr + " " + strconv.FormatInt(v, 10) + "\n"))
			case float64:
				w.Write([]byte(name + labelStr + " " + strconv.FormatFloat(v, 'f', 6, 64) + "\n"))
			}
		}

		// System metrics
		write("intake_uptime_seconds", time.Since(m.startTime).Seconds())

		// Behavior event metrics
		write("intake_events_received_total", m.EventsReceivedTotal)
		write("intake_events_processed_total", m.EventsProcessedTotal)
		write("intake_event_processing_errors_total", m.EventProcessingErrors)

		uptimeSeconds := time.Since(m.startTime).Seconds()
		if uptimeSeconds > 0 {
			write("intake_events_per_second", float64(m.EventsReceivedTotal)/uptimeSeconds)
		}

		// WebSocket metrics
		write("intake_websocket_connections_total", m.WebSocketConnectionsTotal)
		write("intake_websocket_disconnections_total", m.WebSocketDisconnectionsTotal)
		write("intake_websocket_active_connections", m.activeConnections)
		write("intake_websocket_messages_total", m.WebSocketMessagesTotal)
		write("intake_websocket_errors_total", m.WebSocketErrorsTotal)

		// Chat metrics
		write("intake_chats_started_total", m.ChatsStartedTotal)
		write("intake_chats_ended_total", m.ChatsEndedTotal)
		for level, count := range m.chatsByLevel {
			write("intake_chats_by_engagement", count, "level", string(level))
		}

		// Routing metrics
		write("intake_routing_resolved_total", m.RoutingResolvedTotal)
		write("intake_routing_fallback_total", m.RoutingFallbackTotal)
		write("intake_routing_no_candidate_total", m.RoutingNoCandidateTotal)

		// HTTP metrics
		for endpoint, statusCodes := range m.httpRequestsTotal {
			for status, count := range statusCodes {
				write("intake_http_requests_total", count, "endpoint", endpoint, "status", strconv.Itoa(status))
			}
		}
	}
}
