// Package pipeline runs one inbound message end to end: transcription,
// conversation resolution, persistence, confirmation handling and reply.
package pipeline

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/atendeai/booking-engine/internal/availability"
	"github.com/atendeai/booking-engine/internal/booking"
	"github.com/atendeai/booking-engine/internal/conversation"
	"github.com/atendeai/booking-engine/internal/directory"
	"github.com/atendeai/booking-engine/internal/llm"
	"github.com/atendeai/booking-engine/internal/messaging"
	"github.com/atendeai/booking-engine/internal/observability/metrics"
	"github.com/atendeai/booking-engine/internal/webhook"
	"github.com/atendeai/booking-engine/pkg/logging"
)

const transcriptionFallback = "Desculpe, não consegui ouvir seu áudio. Pode escrever sua mensagem?"

// Config tunes pipeline behaviour.
type Config struct {
	// AvailabilityDays is how far ahead the scheduling picture in the
	// system prompt looks.
	AvailabilityDays int
	// HistoryLimit is how many stored messages feed reply generation and
	// extraction.
	HistoryLimit int
}

func (c *Config) applyDefaults() {
	if c.AvailabilityDays <= 0 {
		c.AvailabilityDays = 7
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 16
	}
}

// Pipeline implements webhook.Processor.
type Pipeline struct {
	directory    directory.Store
	convos       conversation.Store
	resolver     *conversation.Resolver
	orchestrator *conversation.Orchestrator
	extractor    conversation.Extractor
	engine       *booking.Engine
	gateway      messaging.Gateway
	llm          llm.Client
	cfg          Config
	logger       *logging.Logger
	metrics      *metrics.Metrics
	tracer       trace.Tracer

	now func() time.Time
}

// New wires the pipeline. The llm client is only used here for audio
// transcription; reply generation goes through the orchestrator.
func New(
	dir directory.Store,
	convos conversation.Store,
	resolver *conversation.Resolver,
	orchestrator *conversation.Orchestrator,
	extractor conversation.Extractor,
	engine *booking.Engine,
	gateway messaging.Gateway,
	client llm.Client,
	cfg Config,
	logger *logging.Logger,
	m *metrics.Metrics,
) *Pipeline {
	if dir == nil || convos == nil || resolver == nil || orchestrator == nil || engine == nil {
		panic("pipeline: missing dependency")
	}
	cfg.applyDefaults()
	if logger == nil {
		logger = logging.Default()
	}
	return &Pipeline{
		directory:    dir,
		convos:       convos,
		resolver:     resolver,
		orchestrator: orchestrator,
		extractor:    extractor,
		engine:       engine,
		gateway:      gateway,
		llm:          client,
		cfg:          cfg,
		logger:       logger,
		metrics:      m,
		tracer:       otel.Tracer("pipeline"),
		now:          time.Now,
	}
}

var _ webhook.Processor = (*Pipeline)(nil)

// Ready reports whether the pipeline has the credentials it needs to
// serve inbound messages. Missing credentials fail the individual
// webhook request, never the process.
func (p *Pipeline) Ready() error {
	if p.gateway == nil {
		return messaging.ErrNotConfigured
	}
	if p.llm == nil {
		return llm.ErrNotConfigured
	}
	return nil
}

// Process handles one inbound message end to end.
func (p *Pipeline) Process(ctx context.Context, instance *directory.Instance, msg webhook.InboundMessage) error {
	ctx, span := p.tracer.Start(ctx, "pipeline.process",
		trace.WithAttributes(attribute.String("instance", instance.Name)))
	defer span.End()

	text := msg.Text
	if text == "" && msg.AudioBase64 != "" {
		transcript, err := p.transcribe(ctx, msg.AudioBase64)
		if err != nil {
			p.logger.Warn("audio transcription failed", "phone", msg.Phone, "error", err)
			p.send(ctx, instance.Name, msg.Phone, transcriptionFallback)
			return nil
		}
		text = transcript
	}
	if text == "" {
		return nil
	}

	conv, err := p.resolver.Resolve(ctx, instance.CompanyID, instance.Name, msg.Phone, msg.PushName, text)
	if err != nil {
		return fmt.Errorf("pipeline: resolve conversation: %w", err)
	}

	inserted, err := p.convos.AppendMessage(ctx, &conversation.Message{
		ConversationID: conv.ID,
		Role:           conversation.RoleUser,
		Content:        text,
		ExternalID:     msg.RemoteID,
	})
	if err != nil {
		return fmt.Errorf("pipeline: persist inbound: %w", err)
	}
	if !inserted {
		// Gateway redelivered a message we already handled.
		p.logger.Debug("duplicate inbound message skipped", "external_id", msg.RemoteID)
		return nil
	}

	professionals, err := p.directory.ListActiveProfessionals(ctx, instance.CompanyID)
	if err != nil {
		return fmt.Errorf("pipeline: load professionals: %w", err)
	}
	services, err := p.directory.ListActiveServices(ctx, instance.CompanyID)
	if err != nil {
		return fmt.Errorf("pipeline: load services: %w", err)
	}
	history, err := p.convos.RecentMessages(ctx, conv.ID, p.cfg.HistoryLimit)
	if err != nil {
		return fmt.Errorf("pipeline: load history: %w", err)
	}

	now := p.now()

	if conversation.IsConfirmation(text) {
		handled, err := p.tryCommit(ctx, instance, conv, history, professionals, services, now)
		if err != nil {
			return err
		}
		if handled {
			return nil
		}
		// Extraction not ready; the dialogue continues normally.
	}

	reply := p.orchestrator.Reply(ctx, conversation.PromptContext{
		Instance:      instance,
		Professionals: professionals,
		Services:      services,
		Availability:  p.availabilityByProfessional(ctx, professionals, now),
		Now:           now,
	}, history)

	return p.deliver(ctx, instance.Name, conv, reply)
}

// tryCommit runs extraction and, when complete, books the appointment and
// sends a deterministic confirmation. Returns false when extraction could
// not produce a bookable result.
func (p *Pipeline) tryCommit(
	ctx context.Context,
	instance *directory.Instance,
	conv *conversation.Conversation,
	history []conversation.Message,
	professionals []directory.Professional,
	services []directory.Service,
	now time.Time,
) (bool, error) {
	if p.extractor == nil {
		return false, nil
	}
	details, err := p.extractor.Extract(ctx, conversation.ExtractionContext{
		Conversation:  conv,
		History:       history,
		Professionals: professionals,
		Services:      services,
		Now:           now,
	})
	if err != nil {
		p.logger.Error("extraction failed", "conversation_id", conv.ID, "error", err)
		p.metrics.IncExtraction("error")
		return false, nil
	}
	if details == nil {
		p.metrics.IncExtraction("incomplete")
		return false, nil
	}
	p.metrics.IncExtraction("complete")

	result, err := p.engine.Commit(ctx, booking.CommitRequest{
		CompanyID:        instance.CompanyID,
		ConversationID:   conv.ID,
		ClientName:       details.ClientName,
		ClientPhone:      details.ClientPhone,
		ProfessionalID:   details.ProfessionalID,
		ProfessionalName: details.ProfessionalName,
		ServiceID:        details.ServiceID,
		ServiceName:      details.ServiceName,
		Date:             details.Date,
		StartTime:        details.StartTime,
		DurationMinutes:  details.DurationMinutes,
		PriceCents:       details.PriceCents,
	})
	if err != nil {
		return false, fmt.Errorf("pipeline: commit booking: %w", err)
	}

	reply := confirmationText(result, details)
	if err := p.deliver(ctx, instance.Name, conv, reply); err != nil {
		return true, err
	}
	return true, nil
}

// confirmationText is deterministic so a committed booking is never
// described wrong by a model.
func confirmationText(result *booking.Result, details *conversation.BookingDetails) string {
	date := displayDate(details.Date)
	switch result.Outcome {
	case booking.OutcomeRescheduled:
		return fmt.Sprintf("Prontinho! Seu horário foi remarcado: %s com %s em %s às %s.",
			details.ServiceName, details.ProfessionalName, date, details.StartTime)
	case booking.OutcomeDuplicate:
		return fmt.Sprintf("Seu agendamento já está registrado: %s com %s em %s às %s. Até lá!",
			details.ServiceName, details.ProfessionalName, date, details.StartTime)
	case booking.OutcomeConflict:
		return "Esse horário acabou de ser ocupado. Pode me dizer outro horário que eu verifico a agenda?"
	default:
		return fmt.Sprintf("Perfeito! Agendamento confirmado: %s com %s em %s às %s. Até lá!",
			details.ServiceName, details.ProfessionalName, date, details.StartTime)
	}
}

func displayDate(civil string) string {
	t, err := time.Parse("2006-01-02", civil)
	if err != nil {
		return civil
	}
	return t.Format("02/01/2006")
}

// deliver sends the assistant reply and persists it; a send failure keeps
// the message with an undelivered status so the dialogue state stays true.
func (p *Pipeline) deliver(ctx context.Context, instanceName string, conv *conversation.Conversation, reply string) error {
	status := conversation.MessageStatusSent
	if err := p.sendText(ctx, instanceName, conv.Phone, reply); err != nil {
		p.logger.Error("reply delivery failed", "conversation_id", conv.ID, "error", err)
		status = conversation.MessageStatusUndelivered
	}
	if _, err := p.convos.AppendMessage(ctx, &conversation.Message{
		ConversationID: conv.ID,
		Role:           conversation.RoleAssistant,
		Content:        reply,
		Status:         status,
	}); err != nil {
		return fmt.Errorf("pipeline: persist reply: %w", err)
	}
	return nil
}

func (p *Pipeline) send(ctx context.Context, instanceName, phone, text string) {
	if err := p.sendText(ctx, instanceName, phone, text); err != nil {
		p.logger.Error("send failed", "phone", phone, "error", err)
	}
}

func (p *Pipeline) sendText(ctx context.Context, instanceName, number, text string) error {
	if p.gateway == nil {
		return messaging.ErrNotConfigured
	}
	return p.gateway.SendText(ctx, instanceName, number, text)
}

func (p *Pipeline) transcribe(ctx context.Context, audioBase64 string) (string, error) {
	if p.llm == nil {
		return "", fmt.Errorf("pipeline: no transcription client")
	}
	audio, err := base64.StdEncoding.DecodeString(audioBase64)
	if err != nil {
		return "", fmt.Errorf("pipeline: decode audio: %w", err)
	}
	started := time.Now()
	transcript, err := p.llm.Transcribe(ctx, audio, "pt")
	p.metrics.ObserveLLMLatency("transcription", time.Since(started))
	if err != nil {
		p.metrics.IncLLMFailure("transcription")
		return "", err
	}
	return transcript, nil
}

// availabilityByProfessional loads each professional's day picture for the
// prompt. Load failures degrade to an absent agenda rather than failing
// the reply.
func (p *Pipeline) availabilityByProfessional(ctx context.Context, professionals []directory.Professional, now time.Time) map[string][]availability.DayAvailability {
	from := now
	toDate := now.AddDate(0, 0, p.cfg.AvailabilityDays-1).Format("2006-01-02")
	out := make(map[string][]availability.DayAvailability, len(professionals))
	for _, prof := range professionals {
		appts, err := p.directory.AppointmentsForRange(ctx, prof.ID, from.Format("2006-01-02"), toDate)
		if err != nil {
			p.logger.Warn("failed to load agenda", "professional", prof.Name, "error", err)
			continue
		}
		out[prof.Name] = availability.Compute(prof, appts, from, p.cfg.AvailabilityDays)
	}
	return out
}
