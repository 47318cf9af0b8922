package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/kailas-cloud/cinefuse/internal/domain/search/filter"
	"github.com/kailas-cloud/cinefuse/internal/domain/search/fusion"
	"github.com/kailas-cloud/cinefuse/internal/domain/search/mode"
	"github.com/kailas-cloud/cinefuse/internal/domain/search/request"
	"github.com/kailas-cloud/cinefuse/internal/domain/search/result"
)

// Output formats.
const (
	formatText = "text"
	formatJSON = "json"
)

// searchOptions holds the search subcommand flags. Pointer fields stay nil
// unless the flag was set.
type searchOptions struct {
	limit          int
	candidateCap   int
	mode           string
	strategy       string
	keywordWeight  *float64
	semanticWeight *float64
	k              *float64
	alpha          *float64
	minScore       float64
	genres         []string
	yearFrom       *int
	yearTo         *int
	boosts         []string
	compare        bool
	format         string
}

func newSearchCmd(env *string) *cobra.Command {
	var (
		opts             searchOptions
		kw, sw, k, alpha float64
		yearFrom, yearTo int
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a hybrid search against the catalog",
		Long: `Run a hybrid search and print the ranked movies.

Examples:
  cinefuse search "heist gone wrong"
  cinefuse search "space opera" --strategy alpha --alpha 0.7 --limit 5
  cinefuse search "romantic comedy" --genre Comedy --year-from 1990 --format json
  cinefuse search "time travel" --compare`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs := cmd.Flags()
			opts.keywordWeight = changed(fs, "keyword-weight", kw)
			opts.semanticWeight = changed(fs, "semantic-weight", sw)
			opts.k = changed(fs, "k", k)
			opts.alpha = changed(fs, "alpha", alpha)
			opts.yearFrom = changed(fs, "year-from", yearFrom)
			opts.yearTo = changed(fs, "year-to", yearTo)

			if opts.format != formatText && opts.format != formatJSON {
				return fmt.Errorf("unknown format %q: want text or json", opts.format)
			}

			a, err := newApp(cmd.Context(), *env)
			if err != nil {
				return err
			}
			defer a.close()

			return runSearch(cmd.Context(), a.search, a.defaults, strings.Join(args, " "), &opts, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.IntVarP(&opts.limit, "limit", "n", 0, "maximum results (default from config)")
	f.IntVar(&opts.candidateCap, "candidate-cap", 0, "candidates fetched from each source")
	f.StringVarP(&opts.mode, "mode", "m", string(mode.Hybrid), "hybrid, semantic or keyword")
	f.StringVarP(&opts.strategy, "strategy", "s", "", "fusion strategy: weighted, rrf or alpha")
	f.Float64Var(&kw, "keyword-weight", 0, "weighted: lexical weight")
	f.Float64Var(&sw, "semantic-weight", 0, "weighted: vector weight")
	f.Float64Var(&k, "k", 0, "rrf: rank constant")
	f.Float64Var(&alpha, "alpha", 0, "alpha: vector share in [0,1]")
	f.Float64Var(&opts.minScore, "min-score", 0, "drop results scoring below this (0-100)")
	f.StringSliceVarP(&opts.genres, "genre", "g", nil, "require a genre (repeatable)")
	f.IntVar(&yearFrom, "year-from", 0, "earliest release year")
	f.IntVar(&yearTo, "year-to", 0, "latest release year")
	f.StringSliceVar(&opts.boosts, "boost", nil, "field boost as field:factor (repeatable)")
	f.BoolVar(&opts.compare, "compare", false, "rank with every strategy side by side")
	f.StringVarP(&opts.format, "format", "f", formatText, "output format: text or json")

	return cmd
}

// searcher is the slice of the search service the command needs.
type searcher interface {
	Search(ctx context.Context, req *request.Request) (*result.Response, error)
	Compare(ctx context.Context, req *request.Request, configs []fusion.Config) ([]result.Response, error)
}

func runSearch(
	ctx context.Context,
	svc searcher,
	defaults request.Defaults,
	query string,
	opts *searchOptions,
	out io.Writer,
) error {
	req, err := opts.request(query, defaults)
	if err != nil {
		return err
	}

	var responses []result.Response
	if opts.compare {
		configs, cerr := opts.compareConfigs(defaults)
		if cerr != nil {
			return cerr
		}
		responses, err = svc.Compare(ctx, &req, configs)
	} else {
		var resp *result.Response
		resp, err = svc.Search(ctx, &req)
		if resp != nil {
			responses = []result.Response{*resp}
		}
	}
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if opts.format == formatJSON {
		return writeJSON(out, responses)
	}
	for i := range responses {
		writeText(out, &responses[i])
	}
	return nil
}

// request validates the flags into a search request.
func (o *searchOptions) request(query string, defaults request.Defaults) (request.Request, error) {
	f, err := filter.New(o.genres, o.yearFrom, o.yearTo)
	if err != nil {
		return request.Request{}, fmt.Errorf("invalid filter: %w", err)
	}

	boosts, err := parseBoostFlags(o.boosts)
	if err != nil {
		return request.Request{}, err
	}

	// In compare mode each strategy is configured by compareConfigs.
	var fc fusion.Config
	if !o.compare && (o.strategy != "" || o.hasFusionParams()) {
		fc, err = fusion.Resolve(o.strategy, o.fusionParams(), defaults.FusionParams, defaults.Fusion.Strategy())
		if err != nil {
			return request.Request{}, fmt.Errorf("invalid fusion: %w", err)
		}
	}

	req, err := request.New(request.Params{
		Text:         query,
		Mode:         mode.Mode(o.mode),
		Filter:       f,
		Fusion:       fc,
		Boosts:       boosts,
		Limit:        o.limit,
		CandidateCap: o.candidateCap,
		MinScore:     o.minScore,
	}, defaults)
	if err != nil {
		return request.Request{}, fmt.Errorf("invalid search: %w", err)
	}
	return req, nil
}

// compareConfigs returns the three strategies, each tuned by any flag given and
// otherwise by the deployment parameters.
func (o *searchOptions) compareConfigs(defaults request.Defaults) ([]fusion.Config, error) {
	names := []fusion.Strategy{fusion.WeightedSum, fusion.RRF, fusion.AlphaBlend}
	if o.strategy != "" {
		names = nil
		for _, s := range strings.Split(o.strategy, ",") {
			names = append(names, fusion.Strategy(strings.TrimSpace(s)))
		}
	}
	params := o.fusionParams().Or(defaults.FusionParams)
	configs := make([]fusion.Config, 0, len(names))
	for _, name := range names {
		cfg, err := fusion.Parse(string(name), params)
		if err != nil {
			return nil, fmt.Errorf("invalid fusion: %w", err)
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

func (o *searchOptions) fusionParams() fusion.Params {
	return fusion.Params{
		KeywordWeight:  o.keywordWeight,
		SemanticWeight: o.semanticWeight,
		K:              o.k,
		Alpha:          o.alpha,
	}
}

func (o *searchOptions) hasFusionParams() bool {
	return o.keywordWeight != nil || o.semanticWeight != nil || o.k != nil || o.alpha != nil
}

func parseBoostFlags(pairs []string) (map[string]float64, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]float64, len(pairs))
	for _, pair := range pairs {
		field, raw, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("invalid boost %q: want field:factor", pair)
		}
		factor, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid boost %q: factor is not a number", pair)
		}
		out[strings.TrimSpace(field)] = factor
	}
	return out, nil
}

// changed returns &v only when the flag was set on the command line.
func changed[T any](fs *pflag.FlagSet, name string, v T) *T {
	if !fs.Changed(name) {
		return nil
	}
	return &v
}

type jsonHit struct {
	Rank     int      `json:"rank"`
	ID       string   `json:"id"`
	Score    float64  `json:"score"`
	Title    string   `json:"title,omitempty"`
	Year     int      `json:"year,omitempty"`
	Genres   []string `json:"genres,omitempty"`
	Lexical  *float64 `json:"lexical_score,omitempty"`
	Vector   *float64 `json:"vector_score,omitempty"`
	FusedRaw float64  `json:"fused_raw"`
}

type jsonResponse struct {
	Query    string    `json:"query"`
	Mode     string    `json:"mode"`
	Fusion   string    `json:"fusion"`
	Total    int       `json:"total"`
	Degraded bool      `json:"degraded"`
	Reasons  []string  `json:"degraded_reasons,omitempty"`
	TookMs   int64     `json:"took_ms"`
	Results  []jsonHit `json:"results"`
}

func writeJSON(out io.Writer, responses []result.Response) error {
	docs := make([]jsonResponse, len(responses))
	for i := range responses {
		r := &responses[i]
		doc := jsonResponse{
			Query:    r.Query,
			Mode:     string(r.Mode),
			Fusion:   r.Fusion.String(),
			Total:    r.Total,
			Degraded: r.Degraded,
			TookMs:   r.Duration.Milliseconds(),
			Results:  make([]jsonHit, len(r.Results)),
		}
		for _, reason := range r.Reasons {
			doc.Reasons = append(doc.Reasons, string(reason))
		}
		for j := range r.Results {
			hit := &r.Results[j]
			b := hit.Breakdown()
			h := jsonHit{
				Rank:     j + 1,
				ID:       hit.ID(),
				Score:    hit.Score(),
				Lexical:  b.LexicalRaw,
				Vector:   b.VectorRaw,
				FusedRaw: b.FusedRaw,
			}
			if m := hit.Movie(); m != nil {
				h.Title, h.Year, h.Genres = m.Title(), m.Year(), m.Genres()
			}
			doc.Results[j] = h
		}
		docs[i] = doc
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if len(docs) == 1 {
		return enc.Encode(docs[0]) //nolint:wrapcheck // terminal write
	}
	return enc.Encode(docs) //nolint:wrapcheck // terminal write
}

func writeText(out io.Writer, r *result.Response) {
	fmt.Fprintf(out, "%s  [%s, %s]  %d of %d in %dms\n",
		strconv.Quote(r.Query), r.Mode, r.Fusion, len(r.Results), r.Total, r.Duration.Milliseconds())
	if r.Degraded {
		reasons := make([]string, len(r.Reasons))
		for i, reason := range r.Reasons {
			reasons[i] = string(reason)
		}
		fmt.Fprintf(out, "  degraded: %s\n", strings.Join(reasons, ", "))
	}
	if len(r.Results) == 0 {
		fmt.Fprintln(out, "  no results")
	}
	for i := range r.Results {
		hit := &r.Results[i]
		title := hit.ID()
		var meta string
		if m := hit.Movie(); m != nil {
			title = m.Title()
			if y := m.Year(); y > 0 {
				meta = fmt.Sprintf(" (%d)", y)
			}
			if g := m.Genres(); len(g) > 0 {
				meta += " " + strings.Join(g, "/")
			}
		}
		fmt.Fprintf(out, "%3d. %6.2f  %s%s\n", i+1, hit.Score(), title, meta)
	}
	fmt.Fprintln(out)
}
