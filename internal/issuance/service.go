package issuance

import (
	"context"
	"errors"
	"fmt"

	"github.com/bloodbank/bloodbank-backend/internal/audit"
	"github.com/bloodbank/bloodbank-backend/internal/compat"
	"github.com/bloodbank/bloodbank-backend/internal/ledger"
	"github.com/bloodbank/bloodbank-backend/pkg/enums"
	pkgerrors "github.com/bloodbank/bloodbank-backend/pkg/errors"
	"github.com/bloodbank/bloodbank-backend/pkg/logger"
	"github.com/bloodbank/bloodbank-backend/pkg/metrics"
)

const (
	// suggestedInAudit caps how many ranked alternatives an issue.suggest entry keeps.
	suggestedInAudit = 3

	// ReasonEmpty marks an emergency request that found no O- stock.
	ReasonEmpty = "EMPTY"
)

// IssueInput is a routine request for units of one blood type.
// OriginalRequested is set when the caller is accepting a suggested substitute.
type IssueInput struct {
	BloodType         enums.BloodType
	Units             int
	OriginalRequested *enums.BloodType
	Actor             audit.Actor
}

// Used names the type and units actually withdrawn.
type Used struct {
	Type  enums.BloodType `json:"type"`
	Units int             `json:"units"`
}

// IssueResult is either a fulfilled withdrawal or a shortfall carrying the
// ranked alternatives. Nothing is withdrawn on shortfall.
type IssueResult struct {
	Used            *Used                `json:"used,omitempty"`
	NeedAlternative bool                 `json:"needAlternative"`
	Requested       enums.BloodType      `json:"requested,omitempty"`
	Units           int                  `json:"units,omitempty"`
	Available       *int                 `json:"available,omitempty"`
	Message         string               `json:"message,omitempty"`
	Recommended     *compat.Alternative  `json:"recommended,omitempty"`
	Alternatives    []compat.Alternative `json:"alternatives,omitempty"`
}

// EmergencyResult reports an O- drain. Empty means there was nothing to issue.
type EmergencyResult struct {
	Issued  int             `json:"issued"`
	Type    enums.BloodType `json:"type"`
	Empty   bool            `json:"-"`
	Reason  string          `json:"reason,omitempty"`
	Message string          `json:"message,omitempty"`
}

type Service interface {
	Issue(ctx context.Context, input IssueInput) (*IssueResult, error)
	EmergencyDrain(ctx context.Context, actor audit.Actor) (*EmergencyResult, error)
}

type ServiceParams struct {
	Ledger   ledger.Service
	Recorder audit.Recorder
	Logger   *logger.Logger
	Metrics  *metrics.BankMetrics
}

type service struct {
	ledger   ledger.Service
	recorder audit.Recorder
	logg     *logger.Logger
	metrics  *metrics.BankMetrics
}

func NewService(params ServiceParams) (Service, error) {
	if params.Ledger == nil {
		return nil, errors.New("ledger service is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	recorder := params.Recorder
	if recorder == nil {
		recorder = audit.Nop
	}
	return &service{
		ledger:   params.Ledger,
		recorder: recorder,
		logg:     params.Logger,
		metrics:  params.Metrics,
	}, nil
}

func (s *service) Issue(ctx context.Context, input IssueInput) (*IssueResult, error) {
	if err := validateIssue(input); err != nil {
		return nil, err
	}

	err := s.ledger.Withdraw(ctx, input.BloodType, input.Units)
	switch {
	case err == nil:
		return s.fulfilled(ctx, input), nil
	case pkgerrors.IsCode(err, pkgerrors.CodeInsufficient):
		return s.shortfall(ctx, input)
	default:
		return nil, err
	}
}

func (s *service) fulfilled(ctx context.Context, input IssueInput) *IssueResult {
	requested := input.BloodType
	if input.OriginalRequested != nil {
		requested = *input.OriginalRequested
	}
	s.recorder.Record(ctx, audit.Entry{
		Action:     enums.AuditActionIssueOK,
		Actor:      input.Actor,
		EntityType: enums.AuditEntityInventory,
		EntityID:   string(input.BloodType),
		Details: map[string]any{
			"requested":  string(requested),
			"issuedType": string(input.BloodType),
			"units":      input.Units,
			"substitute": requested != input.BloodType,
		},
	})
	s.metrics.IncOutcome(metrics.OutcomeIssued)
	s.metrics.AddUnitsIssued(string(input.BloodType), input.Units)

	return &IssueResult{Used: &Used{Type: input.BloodType, Units: input.Units}}
}

func (s *service) shortfall(ctx context.Context, input IssueInput) (*IssueResult, error) {
	snapshot, err := s.ledger.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	available := snapshot[input.BloodType]
	ranked := compat.RankAlternatives(input.BloodType, input.BloodType, snapshot)

	result := &IssueResult{
		NeedAlternative: true,
		Requested:       input.BloodType,
		Units:           input.Units,
		Available:       &available,
		Alternatives:    ranked,
	}
	var best any
	if alt, ok := compat.FirstCovering(ranked, input.Units); ok {
		result.Recommended = &alt
		result.Message = fmt.Sprintf("Insufficient %s. Recommended alternative: %s.", input.BloodType, alt.Type)
		best = string(alt.Type)
	} else {
		result.Message = fmt.Sprintf("Insufficient %s. No single alternative has %d units.", input.BloodType, input.Units)
	}

	top := ranked
	if len(top) > suggestedInAudit {
		top = top[:suggestedInAudit]
	}
	suggested := make([]map[string]any, 0, len(top))
	for _, alt := range top {
		suggested = append(suggested, map[string]any{
			"type":       string(alt.Type),
			"available":  alt.Available,
			"popularity": alt.Popularity.InexactFloat64(),
		})
	}
	s.recorder.Record(ctx, audit.Entry{
		Action:     enums.AuditActionIssueSuggest,
		Actor:      input.Actor,
		EntityType: enums.AuditEntityInventory,
		EntityID:   string(input.BloodType),
		Details: map[string]any{
			"requested": string(input.BloodType),
			"units":     input.Units,
			"available": available,
			"shortfall": input.Units - available,
			"best":      best,
			"suggested": suggested,
		},
	})
	s.metrics.IncOutcome(metrics.OutcomeNeedAlternative)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"blood_type": string(input.BloodType),
		"units":      input.Units,
		"available":  available,
	}), "issue shortfall, alternatives suggested")

	return result, nil
}

func (s *service) EmergencyDrain(ctx context.Context, actor audit.Actor) (*EmergencyResult, error) {
	issued, err := s.ledger.Drain(ctx, enums.BloodTypeONeg)
	if err != nil {
		return nil, err
	}

	if issued == 0 {
		s.recorder.Record(ctx, audit.Entry{
			Action:     enums.AuditActionEmergencyEmpty,
			Actor:      actor,
			EntityType: enums.AuditEntityInventory,
			EntityID:   string(enums.BloodTypeONeg),
			Details:    map[string]any{},
		})
		s.metrics.IncOutcome(metrics.OutcomeEmergencyEmpty)
		return &EmergencyResult{
			Type:    enums.BloodTypeONeg,
			Empty:   true,
			Reason:  ReasonEmpty,
			Message: "No O- units available.",
		}, nil
	}

	s.recorder.Record(ctx, audit.Entry{
		Action:     enums.AuditActionEmergencyOK,
		Actor:      actor,
		EntityType: enums.AuditEntityInventory,
		EntityID:   string(enums.BloodTypeONeg),
		Details: map[string]any{
			"requested":  string(enums.BloodTypeONeg),
			"issuedType": string(enums.BloodTypeONeg),
			"units":      issued,
		},
	})
	s.metrics.IncOutcome(metrics.OutcomeEmergencyIssued)
	s.metrics.AddUnitsIssued(string(enums.BloodTypeONeg), issued)
	s.logg.Warn(s.logg.WithField(ctx, "units", issued), "emergency O- drain issued")

	return &EmergencyResult{Issued: issued, Type: enums.BloodTypeONeg}, nil
}

func validateIssue(input IssueInput) error {
	if !input.BloodType.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid blood type %q", input.BloodType))
	}
	if input.Units < 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "units must be a positive integer")
	}
	if input.OriginalRequested != nil && !input.OriginalRequested.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid original blood type %q", *input.OriginalRequested))
	}
	return nil
}
