package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atendeai/booking-engine/internal/directory"
	"github.com/atendeai/booking-engine/internal/llm"
)

func testDirectory() ([]directory.Professional, []directory.Service) {
	pros := []directory.Professional{
		{
			ID:        uuid.New(),
			Name:      "Ana",
			Active:    true,
			WorkDays:  []time.Weekday{time.Saturday},
			WorkStart: "09:00",
			WorkEnd:   "18:00",
		},
		{
			ID:        uuid.New(),
			Name:      "Bruno",
			Active:    true,
			WorkDays:  []time.Weekday{time.Monday},
			WorkStart: "09:00",
			WorkEnd:   "18:00",
		},
	}
	svcs := []directory.Service{
		{ID: uuid.New(), Name: "Corte", Active: true, DurationMinutes: 30, PriceCents: 5000},
		{ID: uuid.New(), Name: "Massagem", Active: true, DurationMinutes: 60, PriceCents: 12000},
	}
	return pros, svcs
}

func summaryMessage() Message {
	return Message{
		Role: RoleAssistant,
		Content: "Perfeito! Segue o resumo:\n" +
			"Nome: Carlos\nProfissional: Ana\nServiço: Corte\nData: sábado\nHora: 09:00\n" +
			"Responda sim para confirmar.",
	}
}

func TestLooksLikeSummary(t *testing.T) {
	assert.True(t, LooksLikeSummary(summaryMessage().Content))
	assert.True(t, LooksLikeSummary("Agendamento confirmado para amanhã!"))
	assert.False(t, LooksLikeSummary("Qual horário você prefere?"))
	assert.False(t, LooksLikeSummary("Nome: Carlos")) // one labeled field is not a summary
}

func TestIsOpenQuestion(t *testing.T) {
	assert.True(t, isOpenQuestion("Qual serviço você gostaria?"))
	assert.True(t, isOpenQuestion("Me informe seu nome, por favor"))
	assert.False(t, isOpenQuestion(summaryMessage().Content))
	assert.False(t, isOpenQuestion("Até lá!"))
}

func TestHeuristicExtractorCompleteDialogue(t *testing.T) {
	pros, svcs := testDirectory()
	conv := &Conversation{ID: uuid.New(), Phone: "5511999998888", ContactName: "Carlos"}
	history := []Message{
		{Role: RoleUser, Content: "Oi, quero marcar um corte com a Ana no sábado às 9:00"},
		{Role: RoleUser, Content: "Meu nome é Carlos"},
		summaryMessage(),
		{Role: RoleUser, Content: "sim"},
	}

	details, err := NewHeuristicExtractor(nil).Extract(context.Background(), ExtractionContext{
		Conversation:  conv,
		History:       history,
		Professionals: pros,
		Services:      svcs,
		Now:           wednesday,
	})
	require.NoError(t, err)
	require.NotNil(t, details)

	assert.Equal(t, "Carlos", details.ClientName)
	assert.Equal(t, "5511999998888", details.ClientPhone)
	assert.Equal(t, pros[0].ID, details.ProfessionalID)
	assert.Equal(t, svcs[0].ID, details.ServiceID)
	assert.Equal(t, "2026-02-07", details.Date) // upcoming Saturday
	assert.Equal(t, "09:00", details.StartTime)
	assert.Equal(t, 30, details.DurationMinutes)
}

func TestHeuristicExtractorBareHour(t *testing.T) {
	pros, svcs := testDirectory()
	conv := &Conversation{ID: uuid.New(), Phone: "5511999998888", ContactName: "Carlos"}
	history := []Message{
		{Role: RoleUser, Content: "massagem com Bruno na segunda às 14h, meu nome é Paula"},
		{Role: RoleAssistant, Content: "Nome: Paula\nProfissional: Bruno\nServiço: Massagem\nData: segunda\nResponda sim para confirmar."},
	}

	details, err := NewHeuristicExtractor(nil).Extract(context.Background(), ExtractionContext{
		Conversation:  conv,
		History:       history,
		Professionals: pros,
		Services:      svcs,
		Now:           wednesday,
	})
	require.NoError(t, err)
	require.NotNil(t, details)
	assert.Equal(t, "14:00", details.StartTime)
}

func TestHeuristicExtractorIncompleteReturnsNil(t *testing.T) {
	pros, svcs := testDirectory()
	conv := &Conversation{ID: uuid.New(), Phone: "5511999998888"}
	history := []Message{
		{Role: RoleUser, Content: "quero marcar alguma coisa"},
		{Role: RoleAssistant, Content: "Claro! Temos Corte e Massagem."},
	}

	details, err := NewHeuristicExtractor(nil).Extract(context.Background(), ExtractionContext{
		Conversation:  conv,
		History:       history,
		Professionals: pros,
		Services:      svcs,
		Now:           wednesday,
	})
	require.NoError(t, err)
	assert.Nil(t, details)
}

type stubExtractor struct {
	details *BookingDetails
	err     error
	calls   int
}

func (s *stubExtractor) Extract(context.Context, ExtractionContext) (*BookingDetails, error) {
	s.calls++
	return s.details, s.err
}

func TestPipelineGatesOnOpenQuestion(t *testing.T) {
	primary := &stubExtractor{details: &BookingDetails{ClientName: "X"}}
	p := NewPipeline(primary, nil, nil)

	details, err := p.Extract(context.Background(), ExtractionContext{
		History: []Message{
			{Role: RoleAssistant, Content: "Qual horário você prefere?"},
		},
		Now: wednesday,
	})
	require.NoError(t, err)
	assert.Nil(t, details)
	assert.Zero(t, primary.calls, "extraction must not run while the dialogue is still open")
}

func TestPipelineRequiresSummary(t *testing.T) {
	primary := &stubExtractor{details: &BookingDetails{ClientName: "X"}}
	p := NewPipeline(primary, nil, nil)

	details, err := p.Extract(context.Background(), ExtractionContext{
		History: []Message{
			{Role: RoleAssistant, Content: "Tudo certo então."},
			{Role: RoleUser, Content: "sim"},
		},
		Now: wednesday,
	})
	require.NoError(t, err)
	assert.Nil(t, details)
	assert.Zero(t, primary.calls)
}

func TestPipelineFallsBackWhenPrimaryFails(t *testing.T) {
	primary := &stubExtractor{err: context.DeadlineExceeded}
	fallback := &stubExtractor{details: &BookingDetails{ClientName: "Carlos"}}
	p := NewPipeline(primary, fallback, nil)

	details, err := p.Extract(context.Background(), ExtractionContext{
		History: []Message{summaryMessage()},
		Now:     wednesday,
	})
	require.NoError(t, err)
	require.NotNil(t, details)
	assert.Equal(t, "Carlos", details.ClientName)
	assert.Equal(t, 1, fallback.calls)
}

type fakeLLM struct {
	reply string
	err   error
}

func (f *fakeLLM) Complete(context.Context, llm.CompletionRequest) (string, error) {
	return f.reply, f.err
}

func (f *fakeLLM) Transcribe(context.Context, []byte, string) (string, error) {
	return "", nil
}

func TestLLMExtractorParsesStructuredReply(t *testing.T) {
	pros, svcs := testDirectory()
	conv := &Conversation{ID: uuid.New(), Phone: "5511999998888"}
	client := &fakeLLM{reply: `{"client_name":"Carlos","phone":"","professional":"Ana","service":"Corte","date":"2026-02-07","time":"09:00"}`}

	details, err := NewLLMExtractor(client, "gpt-4o-mini", nil).Extract(context.Background(), ExtractionContext{
		Conversation:  conv,
		History:       []Message{summaryMessage(), {Role: RoleUser, Content: "sim"}},
		Professionals: pros,
		Services:      svcs,
		Now:           wednesday,
	})
	require.NoError(t, err)
	require.NotNil(t, details)
	assert.Equal(t, pros[0].ID, details.ProfessionalID)
	assert.Equal(t, "5511999998888", details.ClientPhone, "phone falls back to the conversation")
}

func TestLLMExtractorIncompleteSentinel(t *testing.T) {
	pros, svcs := testDirectory()
	client := &fakeLLM{reply: "INCOMPLETE"}

	details, err := NewLLMExtractor(client, "gpt-4o-mini", nil).Extract(context.Background(), ExtractionContext{
		Conversation:  &Conversation{ID: uuid.New(), Phone: "5511999998888"},
		History:       []Message{summaryMessage()},
		Professionals: pros,
		Services:      svcs,
		Now:           wednesday,
	})
	require.NoError(t, err)
	assert.Nil(t, details)
}

func TestValidateRejectsUnknownProfessional(t *testing.T) {
	pros, svcs := testDirectory()
	details := validate(rawDetails{
		ClientName:   "Carlos",
		Phone:        "5511999998888",
		Professional: "Zuleica",
		Service:      "Corte",
		Date:         "2026-02-07",
		Time:         "09:00",
	}, ExtractionContext{Professionals: pros, Services: svcs})
	assert.Nil(t, details)
}

func TestValidateRejectsMalformedDate(t *testing.T) {
	pros, svcs := testDirectory()
	details := validate(rawDetails{
		ClientName:   "Carlos",
		Phone:        "5511999998888",
		Professional: "Ana",
		Service:      "Corte",
		Date:         "sábado",
		Time:         "09:00",
	}, ExtractionContext{Professionals: pros, Services: svcs})
	assert.Nil(t, details)
}
