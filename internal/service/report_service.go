package service

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"skillconnect/internal/domain"
	"skillconnect/internal/models"

	"github.com/rs/zerolog"
)

const (
	reportCachePrefix = "reports:"
	mostBookedLimit   = 10
)

// ReportService builds the admin reports. Results are cached in the shared
// store for a short TTL; a failing cache never fails a report.
type ReportService struct {
	reports domain.ReportRepository
	cache   domain.CacheStore
	trades  []models.Trade
	ttl     time.Duration
	months  int
	logger  *zerolog.Logger
	now     func() time.Time
}

func NewReportService(
	reports domain.ReportRepository,
	cache domain.CacheStore,
	trades []models.Trade,
	ttl time.Duration,
	months int,
	logger *zerolog.Logger,
) *ReportService {
	if months <= 0 {
		months = 12
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &ReportService{
		reports: reports,
		cache:   cache,
		trades:  trades,
		ttl:     ttl,
		months:  months,
		logger:  logger,
		now:     time.Now,
	}
}

func (s *ReportService) Totals(ctx context.Context) (*models.Totals, error) {
	return cached(ctx, s, "totals", func() (*models.Totals, error) {
		return s.reports.Totals(ctx)
	})
}

func (s *ReportService) Demographics(ctx context.Context) (*models.Demographics, error) {
	return cached(ctx, s, "demographics", func() (*models.Demographics, error) {
		return s.reports.Demographics(ctx)
	})
}

// Skills counts providers per skill, most common first.
func (s *ReportService) Skills(ctx context.Context) ([]models.SkillCount, error) {
	return cached(ctx, s, "skills", func() ([]models.SkillCount, error) {
		sets, err := s.reports.ProviderSkills(ctx)
		if err != nil {
			return nil, err
		}

		names := make(map[string]string)
		counts := make(map[string]int)
		for _, skills := range sets {
			seen := make(map[string]bool)
			for _, skill := range skills {
				key := strings.ToLower(strings.TrimSpace(skill))
				if key == "" || seen[key] {
					continue
				}
				seen[key] = true
				if _, ok := names[key]; !ok {
					names[key] = strings.TrimSpace(skill)
				}
				counts[key]++
			}
		}

		out := make([]models.SkillCount, 0, len(counts))
		for key, n := range counts {
			out = append(out, models.SkillCount{Skill: names[key], Providers: n})
		}
		sort.Slice(out, func(i, j int) bool {
			if out[i].Providers != out[j].Providers {
				return out[i].Providers > out[j].Providers
			}
			return out[i].Skill < out[j].Skill
		})
		return out, nil
	})
}

// SkilledPerTrade counts providers with at least one skill of each trade, in catalog order.
func (s *ReportService) SkilledPerTrade(ctx context.Context) ([]models.TradeCount, error) {
	return cached(ctx, s, "skilled-per-trade", func() ([]models.TradeCount, error) {
		sets, err := s.reports.ProviderSkills(ctx)
		if err != nil {
			return nil, err
		}

		out := make([]models.TradeCount, 0, len(s.trades))
		for _, trade := range s.trades {
			count := 0
			for _, skills := range sets {
				for _, skill := range skills {
					if trade.Covers(skill) {
						count++
						break
					}
				}
			}
			out = append(out, models.TradeCount{Trade: trade.Name, Providers: count})
		}
		return out, nil
	})
}

func (s *ReportService) MostBookedServices(ctx context.Context) ([]models.ServiceCount, error) {
	return cached(ctx, s, "most-booked-services", func() ([]models.ServiceCount, error) {
		return s.reports.MostBookedServices(ctx, mostBookedLimit)
	})
}

func (s *ReportService) TotalsOverTime(ctx context.Context) ([]models.PeriodTotals, error) {
	return cached(ctx, s, "totals-over-time", func() ([]models.PeriodTotals, error) {
		return s.reports.TotalsOverTime(ctx, s.now(), s.months)
	})
}

// Bundle gathers every report for the workbook export.
func (s *ReportService) Bundle(ctx context.Context) (*models.ReportBundle, error) {
	bundle := &models.ReportBundle{GeneratedAt: s.now().UTC()}
	var err error

	if bundle.Totals, err = s.Totals(ctx); err != nil {
		return nil, err
	}
	if bundle.Demographics, err = s.Demographics(ctx); err != nil {
		return nil, err
	}
	if bundle.Skills, err = s.Skills(ctx); err != nil {
		return nil, err
	}
	if bundle.SkilledPerTrade, err = s.SkilledPerTrade(ctx); err != nil {
		return nil, err
	}
	if bundle.MostBooked, err = s.MostBookedServices(ctx); err != nil {
		return nil, err
	}
	if bundle.OverTime, err = s.TotalsOverTime(ctx); err != nil {
		return nil, err
	}
	return bundle, nil
}

func cached[T any](ctx context.Context, s *ReportService, name string, load func() (T, error)) (T, error) {
	key := reportCachePrefix + name
	if s.cache != nil && s.ttl > 0 {
		raw, err := s.cache.Get(ctx, key)
		if err != nil {
			s.logger.Warn().Err(err).Str("report", name).Msg("report cache read failed")
		} else if raw != nil {
			var v T
			if err := json.Unmarshal(raw, &v); err == nil {
				return v, nil
			}
			s.logger.Warn().Str("report", name).Msg("discarding undecodable cached report")
		}
	}

	v, err := load()
	if err != nil {
		return v, err
	}

	if s.cache != nil && s.ttl > 0 {
		if raw, err := json.Marshal(v); err == nil {
			if err := s.cache.Set(ctx, key, raw, s.ttl); err != nil {
				s.logger.Warn().Err(err).Str("report", name).Msg("report cache write failed")
			}
		}
	}
	return v, nil
}
