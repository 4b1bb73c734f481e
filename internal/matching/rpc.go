package matching

import (
	"context"
	"encoding/json"

	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/internal/ranking"
	apperrors "github.com/Adithya-Monish-Kumar-K/job-match-ranking/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/pkg/rpc"
)

const (
	MethodRank       = "MatchService.Rank"
	MethodStrategies = "MatchService.Strategies"
)

type RankParams struct {
	Strategy   string `json:"strategy" validate:"required"`
	ResumeText string `json:"resume_text" validate:"required"`
}

type RankReply struct {
	Strategy      ranking.Strategy          `json:"strategy"`
	Matches       []ranking.NormalizedMatch `json:"matches"`
	Time          float64                   `json:"time"`
	CorpusVersion string                    `json:"corpus_version"`
}

// RegisterRPC exposes the service as MatchService.Rank and
// MatchService.Strategies.
func RegisterRPC(server *rpc.Server, service *Service) {
	validate := newValidator()

	server.Register(MethodRank, func(ctx context.Context, params json.RawMessage) (any, error) {
		var p RankParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, apperrors.Invalid("invalid params")
		}
		if err := validate.Struct(p); err != nil {
			return nil, apperrors.Invalid("%s", validationMessage(err))
		}
		res, err := service.Match(ctx, p.Strategy, p.ResumeText)
		if err != nil {
			return nil, err
		}
		return RankReply{
			Strategy:      res.Strategy,
			Matches:       res.Matches,
			Time:          res.Seconds,
			CorpusVersion: res.CorpusVersion,
		}, nil
	})

	server.Register(MethodStrategies, func(context.Context, json.RawMessage) (any, error) {
		return service.Strategies(), nil
	})
}
