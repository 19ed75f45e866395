package cli

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/spf13/pflag"

	"searchads-tap/internal/config"
	"searchads-tap/internal/domain"
	"searchads-tap/internal/service/extract"
)

// dateFlag is a YYYY-MM-DD flag value.
type dateFlag struct {
	date civil.Date
	set  bool
}

var _ pflag.Value = (*dateFlag)(nil)

func (d *dateFlag) String() string {
	if !d.set {
		return ""
	}
	return d.date.String()
}

func (d *dateFlag) Set(s string) error {
	v, err := civil.ParseDate(s)
	if err != nil {
		return domain.ErrInvalidRange("invalid date %q: want YYYY-MM-DD", s)
	}
	d.date, d.set = v, true
	return nil
}

func (d *dateFlag) Type() string { return "date" }

// rangeFlags are the --start/--end pair. With neither set the range is the
// lookback window ending yesterday.
type rangeFlags struct {
	start, end dateFlag
}

func (r *rangeFlags) register(fs *pflag.FlagSet) {
	fs.Var(&r.start, "start", "First day of the range (YYYY-MM-DD)")
	fs.Var(&r.end, "end", "Last day of the range, inclusive (YYYY-MM-DD)")
}

func (r *rangeFlags) resolve(cfg *config.Config, now time.Time) (domain.DateRange, error) {
	switch {
	case r.start.set && r.end.set:
		return domain.NewDateRange(r.start.date, r.end.date)
	case r.start.set || r.end.set:
		return domain.DateRange{}, domain.ErrInvalidRange("--start and --end must be given together")
	default:
		return extract.LookbackRange(now, cfg.LookbackDays)
	}
}
