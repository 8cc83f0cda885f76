package profile

import (
	"context"
	"fmt"

	"job-recommender/internal/logger"
	"job-recommender/internal/repository"
)

type Source string

const (
	SourceExplicit Source = "explicit"
	SourceInferred Source = "inferred"
	SourceNone     Source = "none"
)

// CareerProfile is recomputed at the start of every cycle and never stored.
type CareerProfile struct {
	UserID  int64
	Careers []CareerRef
	Source  Source
}

func (p CareerProfile) Empty() bool { return len(p.Careers) == 0 }

func (p CareerProfile) Names() []string {
	out := make([]string, 0, len(p.Careers))
	for _, c := range p.Careers {
		out = append(out, c.Name())
	}
	return out
}

// Resolver looks careers up in the explicit ranking first and falls back to the latest analysis.
type Resolver struct {
	careers repository.CareerRepository
	log     logger.Logger
}

func NewResolver(careers repository.CareerRepository, log logger.Logger) *Resolver {
	return &Resolver{careers: careers, log: logger.OrNop(log)}
}

// Resolve never reports an empty profile as an error; storage failures are returned as errors.
func (r *Resolver) Resolve(ctx context.Context, userID int64) (CareerProfile, error) {
	empty := CareerProfile{UserID: userID, Careers: []CareerRef{}, Source: SourceNone}

	ranked, err := r.careers.ListRankedCareers(ctx, userID, MaxCareers)
	if err != nil {
		return empty, fmt.Errorf("load ranked careers: %w", err)
	}
	if len(ranked) > 0 {
		refs := make([]CareerRef, 0, len(ranked))
		for _, rc := range ranked {
			name := NormalizeName(rc.Name)
			if name == "" {
				continue
			}
			refs = append(refs, Scored(name, rc.Score))
		}
		refs = limitRefs(refs)
		if len(refs) > 0 {
			return CareerProfile{UserID: userID, Careers: refs, Source: SourceExplicit}, nil
		}
	}

	raw, found, err := r.careers.LatestRecommendedCareers(ctx, userID)
	if err != nil {
		return empty, fmt.Errorf("load latest analysis: %w", err)
	}
	if !found {
		return empty, nil
	}

	refs, err := ParseRecommendedCareers(raw)
	if err != nil {
		// an unreadable analysis is treated like a missing one
		r.log.Warn("unparseable recommended careers", map[string]interface{}{"user_id": userID, "err": err})
		return empty, nil
	}
	if len(refs) == 0 {
		return empty, nil
	}
	return CareerProfile{UserID: userID, Careers: refs, Source: SourceInferred}, nil
}
