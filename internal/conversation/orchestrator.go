package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/atendeai/booking-engine/internal/availability"
	"github.com/atendeai/booking-engine/internal/directory"
	"github.com/atendeai/booking-engine/internal/llm"
	"github.com/atendeai/booking-engine/internal/observability/metrics"
	"github.com/atendeai/booking-engine/pkg/logging"
)

// OrchestratorConfig tunes reply generation.
type OrchestratorConfig struct {
	Model         string
	Persona       string
	MaxTokens     int
	Temperature   float32
	HistoryWindow int
	Timeout       time.Duration
}

func (c *OrchestratorConfig) applyDefaults() {
	if c.MaxTokens <= 0 {
		c.MaxTokens = 300
	}
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = 8
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
}

// Orchestrator produces the assistant's next reply from the dialogue
// history and the live scheduling picture.
type Orchestrator struct {
	client  llm.Client
	cfg     OrchestratorConfig
	logger  *logging.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// NewOrchestrator creates a reply orchestrator.
func NewOrchestrator(client llm.Client, cfg OrchestratorConfig, logger *logging.Logger, m *metrics.Metrics) *Orchestrator {
	cfg.applyDefaults()
	if logger == nil {
		logger = logging.Default()
	}
	return &Orchestrator{
		client:  client,
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		tracer:  otel.Tracer("conversation"),
	}
}

// PromptContext is everything the system prompt is assembled from.
type PromptContext struct {
	Instance      *directory.Instance
	Professionals []directory.Professional
	Services      []directory.Service
	Availability  map[string][]availability.DayAvailability // keyed by professional name
	Now           time.Time
}

// Reply generates the next assistant message. On any model failure it
// falls back to a static reply so the dialogue never goes silent.
func (o *Orchestrator) Reply(ctx context.Context, pc PromptContext, history []Message) string {
	ctx, span := o.tracer.Start(ctx, "orchestrator.reply")
	defer span.End()

	if o.client == nil {
		return o.staticFallback(pc)
	}

	window := history
	if len(window) > o.cfg.HistoryWindow {
		window = window[len(window)-o.cfg.HistoryWindow:]
	}
	span.SetAttributes(attribute.Int("history.window", len(window)))

	messages := make([]llm.ChatMessage, 0, len(window))
	for _, msg := range window {
		role := llm.ChatRoleUser
		if msg.Role == RoleAssistant {
			role = llm.ChatRoleAssistant
		}
		messages = append(messages, llm.ChatMessage{Role: role, Content: msg.Content})
	}

	model := o.cfg.Model
	temperature := o.cfg.Temperature
	if pc.Instance != nil {
		if pc.Instance.Model != "" {
			model = pc.Instance.Model
		}
		if pc.Instance.Temperature > 0 {
			temperature = float32(pc.Instance.Temperature)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	started := time.Now()
	text, err := o.client.Complete(ctx, llm.CompletionRequest{
		Model:       model,
		System:      o.systemPrompt(pc),
		Messages:    messages,
		MaxTokens:   o.cfg.MaxTokens,
		Temperature: temperature,
	})
	o.metrics.ObserveLLMLatency("chat", time.Since(started))
	if err != nil {
		o.logger.Error("reply generation failed, using static fallback", "error", err)
		o.metrics.IncLLMFailure("chat")
		return o.staticFallback(pc)
	}

	reply := sanitizeReply(text)
	if reply == "" {
		return o.staticFallback(pc)
	}
	return reply
}

func (o *Orchestrator) systemPrompt(pc PromptContext) string {
	var b strings.Builder

	persona := o.cfg.Persona
	if pc.Instance != nil && pc.Instance.Persona != "" {
		persona = pc.Instance.Persona
	}
	if persona == "" {
		persona = "Você é um atendente virtual simpático e objetivo que agenda horários por mensagem."
	}
	b.WriteString(persona)
	b.WriteString("\n\n")
	b.WriteString(WeekdayTable(pc.Now))
	b.WriteString("\n")

	if len(pc.Professionals) > 0 {
		b.WriteString("Profissionais disponíveis:\n")
		for _, p := range pc.Professionals {
			fmt.Fprintf(&b, "- %s (atende de %s às %s)\n", p.Name, p.WorkStart, p.WorkEnd)
		}
		b.WriteString("\n")
	}
	if len(pc.Services) > 0 {
		b.WriteString("Serviços oferecidos:\n")
		for _, s := range pc.Services {
			fmt.Fprintf(&b, "- %s (%d min)\n", s.Name, s.DurationMinutes)
		}
		b.WriteString("\n")
	}
	for _, p := range pc.Professionals {
		if days, ok := pc.Availability[p.Name]; ok {
			b.WriteString(availability.FormatForPrompt(p.Name, days))
			b.WriteString("\n")
		}
	}

	b.WriteString(`Regras:
- Colete nome do cliente, profissional, serviço, data e horário.
- Ofereça apenas horários livres conforme a agenda acima.
- Quando tiver todos os dados, apresente um resumo no formato:
  Nome: ..., Profissional: ..., Serviço: ..., Data: ..., Hora: ...
  e peça para o cliente responder "sim" para confirmar.
- Responda sempre em português, de forma curta, sem markdown.`)
	return b.String()
}

// staticFallback lists who attends and when, so the client can still move
// the booking forward while the model is unavailable.
func (o *Orchestrator) staticFallback(pc PromptContext) string {
	var b strings.Builder
	b.WriteString("Desculpe, estou com instabilidade no momento. ")
	if len(pc.Professionals) > 0 {
		b.WriteString("Nossos profissionais: ")
		parts := make([]string, 0, len(pc.Professionals))
		for _, p := range pc.Professionals {
			parts = append(parts, fmt.Sprintf("%s (%s às %s)", p.Name, p.WorkStart, p.WorkEnd))
		}
		b.WriteString(strings.Join(parts, ", "))
		b.WriteString(". ")
	}
	b.WriteString("Me diga o serviço, o dia e o horário desejado que eu verifico a agenda.")
	return b.String()
}

// sanitizeReply strips markdown artifacts and trailing filler the model
// occasionally emits despite instructions.
func sanitizeReply(text string) string {
	text = strings.TrimSpace(text)
	text = strings.ReplaceAll(text, "**", "")
	text = strings.ReplaceAll(text, "##", "")
	text = strings.TrimPrefix(text, "Assistente:")
	return strings.TrimSpace(text)
}
