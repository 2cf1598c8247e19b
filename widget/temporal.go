package widget

import (
	"context"
	"strings"
	"time"

	"github.com/porter-data/porter/tabular"
)

// temporalClean tries each accepted layout in order
func temporalClean(value interface{}, layouts []string, kind string) (interface{}, error) {
	if isBlank(value) {
		return nil, nil
	}
	if t, ok := value.(time.Time); ok {
		return t, nil
	}

	s := strings.TrimSpace(asString(value))
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return nil, NewValueError(value, "value is not a valid %s (accepted formats: %s)",
		kind, strings.Join(layouts, ", "))
}

// temporalRender formats with the first accepted layout
func temporalRender(value interface{}, layout string, kind string) (interface{}, error) {
	if value == nil {
		return "", nil
	}
	t, ok := value.(time.Time)
	if !ok {
		return nil, NewValueError(value, "value is not a %s", kind)
	}
	return t.Format(layout), nil
}

// DateWidget parses calendar dates against an ordered layout list.
// The first layout is used for rendering.
type DateWidget struct {
	Formats []string
}

// NewDateWidget creates a DateWidget accepting ISO dates
func NewDateWidget() *DateWidget {
	return &DateWidget{Formats: []string{"2006-01-02"}}
}

// Clean parses the cell into a time.Time; blank cells become nil
func (w *DateWidget) Clean(ctx context.Context, value interface{}, row tabular.Row) (interface{}, error) {
	return temporalClean(value, w.Formats, "date")
}

// Render formats the date with the first accepted layout
func (w *DateWidget) Render(ctx context.Context, value interface{}) (interface{}, error) {
	return temporalRender(value, w.Formats[0], "date")
}

// TimeWidget parses wall-clock times against an ordered layout list
type TimeWidget struct {
	Formats []string
}

// NewTimeWidget creates a TimeWidget accepting HH:MM:SS
func NewTimeWidget() *TimeWidget {
	return &TimeWidget{Formats: []string{"15:04:05", "15:04"}}
}

// Clean parses the cell into a time.Time; blank cells become nil
func (w *TimeWidget) Clean(ctx context.Context, value interface{}, row tabular.Row) (interface{}, error) {
	return temporalClean(value, w.Formats, "time")
}

// Render formats the time with the first accepted layout
func (w *TimeWidget) Render(ctx context.Context, value interface{}) (interface{}, error) {
	return temporalRender(value, w.Formats[0], "time")
}

// DateTimeWidget parses timestamps against an ordered layout list
type DateTimeWidget struct {
	Formats []string
}

// NewDateTimeWidget creates a DateTimeWidget accepting common timestamp layouts
func NewDateTimeWidget() *DateTimeWidget {
	return &DateTimeWidget{Formats: []string{
		"2006-01-02 15:04:05",
		time.RFC3339,
		"2006-01-02",
	}}
}

// Clean parses the cell into a time.Time; blank cells become nil
func (w *DateTimeWidget) Clean(ctx context.Context, value interface{}, row tabular.Row) (interface{}, error) {
	return temporalClean(value, w.Formats, "datetime")
}

// Render formats the timestamp with the first accepted layout
func (w *DateTimeWidget) Render(ctx context.Context, value interface{}) (interface{}, error) {
	return temporalRender(value, w.Formats[0], "datetime")
}

// DurationWidget parses Go duration strings ("1h30m", "250ms")
type DurationWidget struct{}

// NewDurationWidget creates a DurationWidget
func NewDurationWidget() *DurationWidget {
	return &DurationWidget{}
}

// Clean parses the cell into a time.Duration; blank cells become nil
func (w *DurationWidget) Clean(ctx context.Context, value interface{}, row tabular.Row) (interface{}, error) {
	if isBlank(value) {
		return nil, nil
	}
	if d, ok := value.(time.Duration); ok {
		return d, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(asString(value)))
	if err != nil {
		return nil, NewValueError(value, "value is not a valid duration")
	}
	return d, nil
}

// Render formats the duration with time.Duration.String
func (w *DurationWidget) Render(ctx context.Context, value interface{}) (interface{}, error) {
	if value == nil {
		return "", nil
	}
	d, ok := value.(time.Duration)
	if !ok {
		return nil, NewValueError(value, "value is not a duration")
	}
	return d.String(), nil
}
