package engine

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"sprintlens/internal/config"
	"sprintlens/internal/domain"
	"sprintlens/internal/engine/auth"
	"sprintlens/internal/events"
	"sprintlens/internal/repo"
)

// ViewObserver receives the timing of every analytics view computed.
type ViewObserver interface {
	ObserveView(view string, tasks int, elapsed time.Duration)
}

type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	Auth    auth.Service
	Events  events.Writer
	Config  *config.Config
	Logger  *zap.Logger
	Metrics ViewObserver
	Now     func() time.Time
}

func New(db *sql.DB, cfg *config.Config, logger *zap.Logger) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Auth:   auth.Service{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Logger: logger,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) log() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

// ValidationError reports caller input that cannot be accepted.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func invalid(field, format string, args ...any) error {
	return ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("taskstatus", func(fl validator.FieldLevel) bool {
		_, err := domain.ParseTaskStatus(fl.Field().String())
		return err == nil
	})
}

// checkOptions runs struct tag validation and reports the first failure as a
// ValidationError.
func checkOptions(opts any) error {
	err := validate.Struct(opts)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	field := toSnake(fe.Field())
	switch fe.Tag() {
	case "required":
		return invalid(field, "is required")
	case "oneof":
		return invalid(field, "must be one of %s", fe.Param())
	case "gte":
		return invalid(field, "must be >= %s", fe.Param())
	case "lte":
		return invalid(field, "must be <= %s", fe.Param())
	case "email":
		return invalid(field, "must be an email address")
	case "taskstatus":
		return invalid(field, "must be one of %v", domain.TaskStatuses)
	default:
		return invalid(field, "failed %s validation", fe.Tag())
	}
}

func toSnake(s string) string {
	var b strings.Builder
	prevLower := false
	for _, r := range s {
		upper := r >= 'A' && r <= 'Z'
		if upper {
			if prevLower {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		prevLower = !upper
		b.WriteRune(r)
	}
	return b.String()
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// normalizeOptionalTime converts an accepted timestamp into the stored layout.
func normalizeOptionalTime(field, v string) (*string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	out, err := domain.NormalizeTime(v)
	if err != nil {
		return nil, invalid(field, "%v", err)
	}
	return &out, nil
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, repo.ErrNotFound)
}
