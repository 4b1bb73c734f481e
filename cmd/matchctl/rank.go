package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/internal/inference"
	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/internal/matching"
	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/internal/ranking"
	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/job-match-ranking/pkg/rpc"
	"github.com/spf13/cobra"
)

type rankOptions struct {
	strategy   string
	resumePath string
	csvPath    string
	topK       int
	sampleSize int
	asJSON     bool
	timeout    time.Duration
}

func newRankCmd(root *rootOptions) *cobra.Command {
	opts := &rankOptions{}
	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Rank the job corpus against a resume",
		Long:  "Reads a plain-text resume and prints the best-matching postings with min-max normalized scores.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRank(cmd, root, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.strategy, "strategy", "s", "tfidf", "Strategy id or alias (tfidf, bm25, embedding/bert, entity/ner)")
	cmd.Flags().StringVarP(&opts.resumePath, "resume", "f", "", "Path to the plain-text resume, or - for stdin (required)")
	cmd.Flags().StringVar(&opts.csvPath, "csv", "", "Job CSV to rank locally (overrides corpus config)")
	cmd.Flags().IntVarP(&opts.topK, "top-k", "k", 0, "Number of matches (defaults to ranking.topK)")
	cmd.Flags().IntVar(&opts.sampleSize, "sample", -1, "Postings to sample; 0 keeps all (defaults to corpus.sampleSize)")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Print the raw JSON response")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "Overall deadline")

	if err := cmd.MarkFlagRequired("resume"); err != nil {
		panic(fmt.Sprintf("failed to mark resume flag as required: %v", err))
	}
	return cmd
}

func runRank(cmd *cobra.Command, root *rootOptions, opts *rankOptions) error {
	resume, err := readInput(cmd.InOrStdin(), opts.resumePath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()

	var reply matching.RankReply
	if root.remote != "" {
		client, err := rpc.Dial(ctx, root.remote)
		if err != nil {
			return err
		}
		defer client.Close()
		if err := client.Call(ctx, matching.MethodRank, matching.RankParams{
			Strategy:   opts.strategy,
			ResumeText: resume,
		}, &reply); err != nil {
			return fmt.Errorf("remote rank: %w", err)
		}
	} else {
		svc, err := localService(ctx, root, opts)
		if err != nil {
			return err
		}
		res, err := svc.Match(ctx, opts.strategy, resume)
		if err != nil {
			return err
		}
		reply = matching.RankReply{
			Strategy:      res.Strategy,
			Matches:       res.Matches,
			Time:          res.Seconds,
			CorpusVersion: res.CorpusVersion,
		}
	}

	out := cmd.OutOrStdout()
	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(matching.MatchResponse{Matches: reply.Matches, Time: reply.Time})
	}
	return printMatches(out, reply)
}

// localService builds an in-process service over the configured or
// flag-selected corpus.
func localService(ctx context.Context, root *rootOptions, opts *rankOptions) (*matching.Service, error) {
	cfg, err := config.Load(root.configPath)
	if err != nil {
		return nil, err
	}
	logger.Setup(root.logLevel, "text")

	if opts.topK > 0 {
		cfg.Ranking.TopK = opts.topK
	}
	if opts.sampleSize >= 0 {
		cfg.Corpus.SampleSize = opts.sampleSize
	}

	var provider corpus.Provider
	switch {
	case opts.csvPath != "":
		provider = corpus.NewCSVProvider(opts.csvPath)
	case cfg.Corpus.Source == "sql":
		db, err := corpus.OpenSQL(ctx, cfg)
		if err != nil {
			return nil, err
		}
		provider = corpus.NewSQLProvider(db)
	default:
		provider = corpus.NewCSVProvider(cfg.Corpus.CSVPath)
	}

	st, err := ranking.ParseStrategy(opts.strategy)
	if err != nil {
		return nil, err
	}
	var registry *ranking.Registry
	switch st {
	case ranking.StrategyTFIDF, ranking.StrategyBM25:
		// lexical strategies need no model backends
		registry = ranking.NewRegistry(ranking.NewTFIDF(), ranking.NewBM25())
	default:
		registry = ranking.DefaultRegistry(inference.NewModels(ctx, cfg.Models, nil, nil))
	}

	cache := corpus.NewCache(provider, cfg.Corpus.SampleSize, cfg.Corpus.Seed, nil)
	return matching.NewService(registry, cache, matching.Options{
		TopK:         cfg.Ranking.TopK,
		PreviewChars: cfg.Ranking.PreviewChars,
		Timeout:      cfg.Ranking.Timeout,
	}), nil
}

func printMatches(w io.Writer, reply matching.RankReply) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "RANK\tINDEX\tSCORE\tPOSTING\n")
	for i, m := range reply.Matches {
		fmt.Fprintf(tw, "%d\t%d\t%.4f\t%s\n", i+1, m.Index, m.Score, m.Preview)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%s ranked in %.3fs (corpus %s)\n", reply.Strategy, reply.Time, reply.CorpusVersion)
	return err
}

func readInput(stdin io.Reader, path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}
