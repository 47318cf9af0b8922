package redis

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/redis/rueidis"
	"github.com/redis/rueidis/mock"
	"go.uber.org/mock/gomock"

	"github.com/kailas-cloud/cinefuse/internal/db"
	"github.com/kailas-cloud/cinefuse/internal/domain/search/filter"
)

// --- client.go tests ---

func TestPing_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("PING")).
		Return(mock.Result(mock.RedisString("PONG")))

	s := NewStoreForTest(c)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPing_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("PING")).
		Return(mock.ErrorResult(errors.New("connection refused")))

	s := NewStoreForTest(c)
	err := s.Ping(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if !isDBError(err) {
		t.Errorf("expected *db.Error, got %T", err)
	}
}

func TestIsRedisErr(t *testing.T) {
	serverErr := mock.Result(mock.RedisError("Unknown Index name")).Error()
	if !isRedisErr(serverErr, "unknown index name") {
		t.Error("match should be case-insensitive")
	}
	if isRedisErr(errors.New("unknown index name"), "unknown index name") {
		t.Error("client-side errors are not server errors")
	}
	if isRedisErr(nil, "anything") {
		t.Error("nil error should not match")
	}
	if isRedisErr(errors.New("timeout"), "unknown index name") {
		t.Error("unrelated error should not match")
	}
}

// --- hash.go tests ---

func TestHSetMulti_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		DoMulti(gomock.Any(), gomock.Any(), gomock.Any()).
		Return([]rueidis.RedisResult{
			mock.Result(mock.RedisInt64(2)),
			mock.Result(mock.RedisInt64(2)),
		})

	s := NewStoreForTest(c)
	err := s.HSetMulti(context.Background(), []db.HashSetItem{
		{Key: "movie:603", Fields: map[string]string{"title": "The Matrix"}},
		{Key: "movie:604", Fields: map[string]string{"title": "The Matrix Reloaded"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestHSetMulti_PartialFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		DoMulti(gomock.Any(), gomock.Any(), gomock.Any()).
		Return([]rueidis.RedisResult{
			mock.Result(mock.RedisInt64(2)),
			mock.ErrorResult(errors.New("OOM")),
		})

	s := NewStoreForTest(c)
	err := s.HSetMulti(context.Background(), []db.HashSetItem{
		{Key: "movie:1", Fields: map[string]string{"title": "a"}},
		{Key: "movie:2", Fields: map[string]string{"title": "b"}},
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "movie:2") {
		t.Errorf("error should name the failing key: %v", err)
	}
}

func TestHSetMulti_Empty(t *testing.T) {
	s := NewStoreForTest(nil)
	if err := s.HSetMulti(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestHGetAllMulti_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		DoMulti(gomock.Any(), gomock.Any(), gomock.Any()).
		Return([]rueidis.RedisResult{
			mock.Result(mock.RedisMap(map[string]rueidis.RedisMessage{
				"title": mock.RedisString("Alien"),
			})),
			mock.Result(mock.RedisMap(map[string]rueidis.RedisMessage{})),
		})

	s := NewStoreForTest(c)
	results, err := s.HGetAllMulti(context.Background(), []string{"movie:348", "movie:missing"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0]["title"] != "Alien" {
		t.Errorf("unexpected first result: %v", results[0])
	}
	if len(results[1]) != 0 {
		t.Errorf("missing key should yield empty map, got %v", results[1])
	}
}

func TestHGetAllMulti_Empty(t *testing.T) {
	s := NewStoreForTest(nil)
	results, err := s.HGetAllMulti(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results != nil {
		t.Errorf("expected nil, got %v", results)
	}
}

func TestHGetAllMulti_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		DoMulti(gomock.Any(), gomock.Any()).
		Return([]rueidis.RedisResult{mock.ErrorResult(context.DeadlineExceeded)})

	s := NewStoreForTest(c)
	_, err := s.HGetAllMulti(context.Background(), []string{"movie:1"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected wrapped DeadlineExceeded, got %v", err)
	}
}

func TestDel_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("DEL", "movie:1")).
		Return(mock.Result(mock.RedisInt64(1)))

	s := NewStoreForTest(c)
	if err := s.Del(context.Background(), "movie:1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestExists(t *testing.T) {
	tests := []struct {
		name  string
		count int64
		want  bool
	}{
		{"present", 1, true},
		{"absent", 0, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			c := mock.NewClient(ctrl)

			c.EXPECT().
				Do(gomock.Any(), mock.Match("EXISTS", "movie:1")).
				Return(mock.Result(mock.RedisInt64(tc.count)))

			s := NewStoreForTest(c)
			got, err := s.Exists(context.Background(), "movie:1")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("Exists() = %v, want %v", got, tc.want)
			}
		})
	}
}

// --- kv.go tests ---

func TestGet_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("GET", "emb:abc")).
		Return(mock.Result(mock.RedisBlobString("value")))

	s := NewStoreForTest(c)
	data, err := s.Get(context.Background(), "emb:abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "value" {
		t.Errorf("unexpected data: %s", data)
	}
}

func TestGet_NotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("GET", "emb:abc")).
		Return(mock.Result(mock.RedisNil()))

	s := NewStoreForTest(c)
	_, err := s.Get(context.Background(), "emb:abc")
	if !errors.Is(err, db.ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestGet_NetworkError(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("GET", "emb:abc")).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	s := NewStoreForTest(c)
	_, err := s.Get(context.Background(), "emb:abc")
	if errors.Is(err, db.ErrKeyNotFound) {
		t.Error("should not be ErrKeyNotFound for network errors")
	}
	if !isDBError(err) {
		t.Errorf("expected *db.Error, got %T", err)
	}
}

func TestSet_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("SET", "emb:abc", "\x00\x01")).
		Return(mock.Result(mock.RedisString("OK")))

	s := NewStoreForTest(c)
	if err := s.Set(context.Background(), "emb:abc", []byte{0, 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// --- index.go tests ---

func movieIndex(t *testing.T) *db.IndexDefinition {
	t.Helper()
	def, err := db.NewIndex("movies:idx").
		Prefix("movie:").
		Text(db.FieldContent, 1).
		Tags(db.FieldGenres, db.GenreSeparator).
		Numeric(db.FieldYear, true).
		Vector(db.FieldVector, 4, db.HNSW{M: 24, EFRuntime: 40}).
		Build()
	if err != nil {
		t.Fatalf("build index: %v", err)
	}
	return def
}

func TestCreateIndex_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.CREATE" && cmd[1] == "movies:idx"
		})).
		Return(mock.Result(mock.RedisString("OK")))

	s := NewStoreForTest(c)
	if err := s.CreateIndex(context.Background(), movieIndex(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCreateIndex_AlreadyExists(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.CREATE"
		})).
		Return(mock.Result(mock.RedisError("Index already exists")))

	s := NewStoreForTest(c)
	err := s.CreateIndex(context.Background(), movieIndex(t))
	if !errors.Is(err, db.ErrIndexExists) {
		t.Errorf("expected ErrIndexExists, got %v", err)
	}
}

func TestCreateIndex_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.CREATE"
		})).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	s := NewStoreForTest(c)
	err := s.CreateIndex(context.Background(), movieIndex(t))
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, db.ErrIndexExists) {
		t.Error("network error must not map to ErrIndexExists")
	}
}

func TestDropIndex_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("FT.DROPINDEX", "movies:idx")).
		Return(mock.Result(mock.RedisString("OK")))

	s := NewStoreForTest(c)
	if err := s.DropIndex(context.Background(), "movies:idx"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDropIndex_NotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("FT.DROPINDEX", "movies:idx")).
		Return(mock.Result(mock.RedisError("Unknown Index name")))

	s := NewStoreForTest(c)
	err := s.DropIndex(context.Background(), "movies:idx")
	if !errors.Is(err, db.ErrIndexNotFound) {
		t.Errorf("expected ErrIndexNotFound, got %v", err)
	}
}

func TestIndexExists_True(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("FT.INFO", "movies:idx")).
		Return(mock.Result(mock.RedisArray(mock.RedisString("index_name"), mock.RedisString("movies:idx"))))

	s := NewStoreForTest(c)
	exists, err := s.IndexExists(context.Background(), "movies:idx")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !exists {
		t.Error("expected true")
	}
}

func TestIndexExists_False(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("FT.INFO", "movies:idx")).
		Return(mock.Result(mock.RedisError("Unknown Index name")))

	s := NewStoreForTest(c)
	exists, err := s.IndexExists(context.Background(), "movies:idx")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exists {
		t.Error("expected false")
	}
}

func TestBuildCreateArgs_MovieSchema(t *testing.T) {
	args, err := buildCreateArgs(movieIndex(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{
		"movies:idx", "ON", "HASH", "PREFIX", "1", "movie:", "LANGUAGE", "english", "SCHEMA",
		db.FieldContent, "TEXT",
		db.FieldGenres, "TAG", "SEPARATOR", ",",
		db.FieldYear, "NUMERIC", "SORTABLE",
		db.FieldVector, "VECTOR", "HNSW", "12",
		"TYPE", "FLOAT32", "DIM", "4", "DISTANCE_METRIC", "COSINE",
		"M", "24", "EF_CONSTRUCTION", "200", "EF_RUNTIME", "40",
	}
	if !slices.Equal(args, want) {
		t.Errorf("FT.CREATE args:\n got %v\nwant %v", args, want)
	}
}

func TestBuildCreateArgs_Validation(t *testing.T) {
	_, err := buildCreateArgs(&db.IndexDefinition{Name: "", Fields: []db.IndexField{{Name: "f", Type: db.IndexFieldTag}}})
	if err == nil {
		t.Error("expected error for empty name")
	}

	_, err = buildCreateArgs(&db.IndexDefinition{Name: "test"})
	if err == nil {
		t.Error("expected error for empty fields")
	}
}

func TestBuildFieldArgs(t *testing.T) {
	tests := []struct {
		name  string
		field db.IndexField
		want  []string
	}{
		{"tag", db.IndexField{Name: "f", Type: db.IndexFieldTag}, []string{"f", "TAG"}},
		{"numeric", db.IndexField{Name: "f", Type: db.IndexFieldNumeric}, []string{"f", "NUMERIC"}},
		{"sortable numeric", db.IndexField{Name: "f", Type: db.IndexFieldNumeric, Sortable: true}, []string{"f", "NUMERIC", "SORTABLE"}},
		{"text", db.IndexField{Name: "f", Type: db.IndexFieldText}, []string{"f", "TEXT"}},
		{"weighted text", db.IndexField{Name: "f", Type: db.IndexFieldText, TextWeight: 1.5}, []string{"f", "TEXT", "WEIGHT", "1.5"}},
		{"tag with separator", db.IndexField{Name: "f", Type: db.IndexFieldTag, TagSeparator: ","}, []string{"f", "TAG", "SEPARATOR", ","}},
		{"vector defaults", db.IndexField{Name: "f", Type: db.IndexFieldVector, VectorDim: 256}, []string{
			"f", "VECTOR", "HNSW", "12", "TYPE", "FLOAT32", "DIM", "256", "DISTANCE_METRIC", "COSINE",
			"M", "16", "EF_CONSTRUCTION", "200", "EF_RUNTIME", "10",
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			args, err := buildFieldArgs(&tc.field)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !slices.Equal(args, tc.want) {
				t.Errorf("got %v, want %v", args, tc.want)
			}
		})
	}
}

func TestBuildFieldArgs_Errors(t *testing.T) {
	_, err := buildFieldArgs(&db.IndexField{Name: "", Type: db.IndexFieldTag})
	if err == nil {
		t.Error("expected error for empty field name")
	}

	_, err = buildFieldArgs(&db.IndexField{Name: "f", Type: db.IndexFieldType(99)})
	if err == nil {
		t.Error("expected error for unknown type")
	}

	_, err = buildFieldArgs(&db.IndexField{Name: "f", Type: db.IndexFieldVector, VectorDim: 0})
	if err == nil {
		t.Error("expected error for zero vector dim")
	}

	_, err = buildFieldArgs(&db.IndexField{Name: "f", Type: db.IndexFieldVector, VectorDim: 4, VectorDistance: "L2"})
	if err == nil {
		t.Error("expected error for non-cosine distance")
	}
}

// --- search.go tests ---

func TestSearchKNN_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.SEARCH"
		})).
		Return(mock.Result(mock.RedisArray(
			mock.RedisInt64(2),
			mock.RedisString("movie:603"),
			mock.RedisArray(
				mock.RedisString("__vector_score"),
				mock.RedisString("0.1"), // distance 0.1 → similarity 0.9
				mock.RedisString("year"),
				mock.RedisString("1999"),
			),
			mock.RedisString("movie:604"),
			mock.RedisArray(
				mock.RedisString("__vector_score"),
				mock.RedisString("1.4"),
			),
		)))

	s := NewStoreForTest(c)
	result, err := s.SearchKNN(context.Background(), &db.KNNQuery{
		IndexName:    "movies:idx",
		Vector:       []float32{0.1, 0.2},
		K:            10,
		ReturnFields: []string{db.FieldVectorScore, db.FieldYear},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Total != 2 || len(result.Entries) != 2 {
		t.Fatalf("expected 2 entries, got total=%d entries=%d", result.Total, len(result.Entries))
	}
	first := result.Entries[0]
	if first.Key != "movie:603" {
		t.Errorf("expected key movie:603, got %s", first.Key)
	}
	if first.Score < 0.89 || first.Score > 0.91 {
		t.Errorf("expected score ~0.9, got %f", first.Score)
	}
	if first.Fields[db.FieldYear] != "1999" {
		t.Errorf("expected year field, got %v", first.Fields)
	}
	if _, ok := first.Fields[db.FieldVectorScore]; ok {
		t.Error("distance field should be consumed into Score")
	}
	// distances beyond 1 are negative similarities, not zero
	if got := result.Entries[1].Score; got > -0.39 || got < -0.41 {
		t.Errorf("expected score ~-0.4, got %f", got)
	}
}

func TestSearchKNN_MissingVectorScoreIsError(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.SEARCH"
		})).
		Return(mock.Result(mock.RedisArray(
			mock.RedisInt64(1),
			mock.RedisString("cinefuse:movie:1"),
			mock.RedisArray(
				mock.RedisString("year"),
				mock.RedisString("1999"),
			),
		)))

	s := NewStoreForTest(c)
	result, err := s.SearchKNN(context.Background(), &db.KNNQuery{
		IndexName: "movies:idx",
		Vector:    []float32{0.1},
		K:         10,
	})
	if !isDBError(err) {
		t.Fatalf("expected *db.Error, got result=%v err=%v", result, err)
	}
	if !strings.Contains(err.Error(), db.FieldVectorScore) {
		t.Errorf("error should name the missing field: %v", err)
	}
}

func TestSimilarityFromDistance(t *testing.T) {
	tests := []struct {
		distance, want float64
	}{
		{0, 1},
		{1, 0},
		{2, -1},
		{2.0000001, -1},
		{-0.0000001, 1},
	}
	for _, tt := range tests {
		if got := db.SimilarityFromDistance(tt.distance); got != tt.want {
			t.Errorf("SimilarityFromDistance(%v) = %v, want %v", tt.distance, got, tt.want)
		}
	}
}

func TestSearchKNN_Empty(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.SEARCH"
		})).
		Return(mock.Result(mock.RedisArray(mock.RedisInt64(0))))

	s := NewStoreForTest(c)
	result, err := s.SearchKNN(context.Background(), &db.KNNQuery{
		IndexName: "movies:idx",
		Vector:    []float32{0.1},
		K:         10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Entries) != 0 {
		t.Errorf("expected 0 entries, got %d", len(result.Entries))
	}
}

func TestSearchKNN_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.SEARCH"
		})).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	s := NewStoreForTest(c)
	_, err := s.SearchKNN(context.Background(), &db.KNNQuery{
		IndexName: "movies:idx",
		Vector:    []float32{0.1},
		K:         10,
	})
	if !isDBError(err) {
		t.Fatalf("expected *db.Error, got %v", err)
	}
}

func TestSearchKNN_Validation(t *testing.T) {
	s := &Store{}
	ctx := context.Background()

	_, err := s.SearchKNN(ctx, &db.KNNQuery{Vector: []float32{0.1}, K: 10})
	if err == nil {
		t.Error("expected error for empty index name")
	}

	_, err = s.SearchKNN(ctx, &db.KNNQuery{IndexName: "idx", K: 10})
	if err == nil {
		t.Error("expected error for empty vector")
	}

	_, err = s.SearchKNN(ctx, &db.KNNQuery{IndexName: "idx", Vector: []float32{0.1}, K: 0})
	if err == nil {
		t.Error("expected error for k=0")
	}
}

func TestBuildKNNArgs(t *testing.T) {
	from := 1990
	f, err := filter.New([]string{"Action"}, &from, nil)
	if err != nil {
		t.Fatalf("filter.New: %v", err)
	}

	args := buildKNNArgs(&db.KNNQuery{
		IndexName:    "movies:idx",
		Filter:       f,
		Vector:       []float32{1, 0},
		K:            50,
		ReturnFields: []string{db.FieldVectorScore, db.FieldGenres},
	})

	if args[0] != "movies:idx" {
		t.Errorf("index = %q", args[0])
	}
	wantQuery := "(@genres:{Action} @year:[1990 +inf])=>[KNN 50 @__vector $BLOB]"
	if args[1] != wantQuery {
		t.Errorf("query = %q, want %q", args[1], wantQuery)
	}
	assertSequence(t, args, "RETURN", "2", db.FieldVectorScore, db.FieldGenres)
	assertSequence(t, args, "SORTBY", db.FieldVectorScore)
	assertSequence(t, args, "LIMIT", "0", "50")
	assertSequence(t, args, "DIALECT", "2")
}

func TestBuildKNNArgs_NoFilter(t *testing.T) {
	args := buildKNNArgs(&db.KNNQuery{IndexName: "idx", Vector: []float32{1}, K: 5})
	if args[1] != "*=>[KNN 5 @__vector $BLOB]" {
		t.Errorf("query = %q", args[1])
	}
	if slices.Contains(args, "RETURN") {
		t.Errorf("no RETURN clause expected without fields: %v", args)
	}
}

func TestSearchBM25_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.SEARCH" && slices.Contains(cmd, "WITHSCORES")
		})).
		Return(mock.Result(mock.RedisArray(
			mock.RedisInt64(1),
			mock.RedisString("movie:348"),
			mock.RedisString("7.25"),
			mock.RedisArray(
				mock.RedisString("genres"),
				mock.RedisString("Horror,Science Fiction"),
			),
		)))

	s := NewStoreForTest(c)
	result, err := s.SearchBM25(context.Background(), &db.TextQuery{
		IndexName: "movies:idx",
		Query:     "alien ship",
		TopK:      10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Total != 1 {
		t.Fatalf("expected total 1, got %d", result.Total)
	}
	if result.Entries[0].Score != 7.25 {
		t.Errorf("expected raw BM25 score 7.25, got %f", result.Entries[0].Score)
	}
	if result.Entries[0].Fields[db.FieldGenres] != "Horror,Science Fiction" {
		t.Errorf("unexpected fields: %v", result.Entries[0].Fields)
	}
}

func TestSearchBM25_MalformedScoreIsError(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.SEARCH"
		})).
		Return(mock.Result(mock.RedisArray(
			mock.RedisInt64(1),
			mock.RedisString("cinefuse:movie:1"),
			mock.RedisString("not-a-number"),
			mock.RedisArray(),
		)))

	s := NewStoreForTest(c)
	result, err := s.SearchBM25(context.Background(), &db.TextQuery{
		IndexName: "movies:idx",
		Query:     "heat",
		TopK:      10,
	})
	if !isDBError(err) {
		t.Fatalf("expected *db.Error, got result=%v err=%v", result, err)
	}
}

func TestSearchBM25_Validation(t *testing.T) {
	s := &Store{}
	ctx := context.Background()

	_, err := s.SearchBM25(ctx, &db.TextQuery{Query: "test", TopK: 10})
	if err == nil {
		t.Error("expected error for empty index name")
	}

	_, err = s.SearchBM25(ctx, &db.TextQuery{IndexName: "idx", Query: "   ", TopK: 10})
	if err == nil {
		t.Error("expected error for blank query")
	}

	_, err = s.SearchBM25(ctx, &db.TextQuery{IndexName: "idx", Query: "test", TopK: 0})
	if err == nil {
		t.Error("expected error for topK=0")
	}
}

func TestBuildBM25Args(t *testing.T) {
	f, err := filter.New([]string{"Drama", "Crime"}, nil, nil)
	if err != nil {
		t.Fatalf("filter.New: %v", err)
	}

	args := buildBM25Args(&db.TextQuery{
		IndexName: "movies:idx",
		Query:     "heist-movie",
		Filter:    f,
		TopK:      25,
	})

	want := `@genres:{Drama | Crime} @__content:(heist\-movie)`
	if args[1] != want {
		t.Errorf("query = %q, want %q", args[1], want)
	}
	assertContains(t, args, "WITHSCORES")
	assertSequence(t, args, "LIMIT", "0", "25")
}

// --- Filter building tests ---

func TestBuildFilter(t *testing.T) {
	from, to := 1980, 1989
	tests := []struct {
		name   string
		genres []string
		from   *int
		to     *int
		want   string
	}{
		{"empty", nil, nil, nil, ""},
		{"single_genre", []string{"Comedy"}, nil, nil, "@genres:{Comedy}"},
		{"genre_with_space", []string{"Science Fiction"}, nil, nil, `@genres:{Science\ Fiction}`},
		{"any_of_genres", []string{"Action", "Thriller"}, nil, nil, "@genres:{Action | Thriller}"},
		{"closed_range", nil, &from, &to, "@year:[1980 1989]"},
		{"open_upper", nil, &from, nil, "@year:[1980 +inf]"},
		{"open_lower", nil, nil, &to, "@year:[-inf 1989]"},
		{"combined", []string{"Horror"}, &from, &to, "@genres:{Horror} @year:[1980 1989]"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f, err := filter.New(tc.genres, tc.from, tc.to)
			if err != nil {
				t.Fatalf("filter.New: %v", err)
			}
			if got := buildFilter(f); got != tc.want {
				t.Errorf("buildFilter() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestEscapeQuery(t *testing.T) {
	input := `hello "world" @user {tag}`
	escaped := escapeQuery(input)
	expected := `hello \"world\" \@user \{tag\}`
	if escaped != expected {
		t.Errorf("expected %q, got %q", expected, escaped)
	}
}

func TestVectorToBytes(t *testing.T) {
	b := vectorToBytes([]float32{1.0, 2.0})
	if len(b) != 8 {
		t.Fatalf("expected 8 bytes, got %d", len(b))
	}
	// 1.0 little-endian IEEE 754
	if b[:4] != "\x00\x00\x80\x3f" {
		t.Errorf("unexpected encoding %q", b[:4])
	}
}

// --- helpers ---

func isDBError(err error) bool {
	var dbErr *db.Error
	return errors.As(err, &dbErr)
}

func assertContains(t *testing.T, args []string, want string) {
	t.Helper()
	if !slices.Contains(args, want) {
		t.Errorf("expected %q in args %v", want, args)
	}
}

func assertSequence(t *testing.T, args []string, seq ...string) {
	t.Helper()
	for i := 0; i+len(seq) <= len(args); i++ {
		if slices.Equal(args[i:i+len(seq)], seq) {
			return
		}
	}
	t.Errorf("expected sequence %v in args %v", seq, args)
}
