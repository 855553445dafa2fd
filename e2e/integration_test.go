//go:build e2e

// Package e2e contains end-to-end integration tests using real DynamoDB tables.
// Run with: go test -tags=e2e -v ./e2e/...
package e2e

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/google/uuid"

	"github.com/jacentio/lattice/kv"
	"github.com/jacentio/lattice/kv/dynamokv"
	"github.com/jacentio/lattice/schema"
	"github.com/jacentio/lattice/store"
)

// Test configuration
const (
	defaultProfile = "lattice-e2e"

	// Table names - unique per test run to avoid conflicts
	tablePrefix = "lattice-e2e-test"
)

var (
	testID       string
	plainTable   string
	shardedTable string

	ddbClient *dynamodb.Client
	plainDB   *store.DB
	shardedDB *store.DB
)

var (
	users = schema.MustCompile(schema.Definition{
		Name: "users",
		Fields: []schema.Field{
			{Name: "id", Type: schema.TypeString, Index: schema.IndexPrimary},
			{Name: "email", Type: schema.TypeString, Index: schema.IndexUnique},
			{Name: "role", Type: schema.TypeString, Index: schema.IndexIndex},
			{Name: "age", Type: schema.TypeInt, Optional: true},
		},
		Relations: map[string]schema.Relation{
			"posts": schema.ToMany("posts", "id", "authorId"),
		},
	})
	posts = schema.MustCompile(schema.Definition{
		Name: "posts",
		Fields: []schema.Field{
			{Name: "id", Type: schema.TypeString, Index: schema.IndexPrimary},
			{Name: "authorId", Type: schema.TypeString, Index: schema.IndexIndex},
			{Name: "title", Type: schema.TypeString},
		},
		Relations: map[string]schema.Relation{
			"author": schema.ToOne("users", "authorId", "id"),
		},
	})
)

// --- Test Setup & Teardown ---

func TestMain(m *testing.M) {
	// Generate unique test ID
	testID = uuid.New().String()[:8]
	plainTable = fmt.Sprintf("%s-%s-plain", tablePrefix, testID)
	shardedTable = fmt.Sprintf("%s-%s-sharded", tablePrefix, testID)

	fmt.Printf("Test ID: %s\n", testID)
	fmt.Printf("Tables:\n")
	fmt.Printf("  - Plain: %s\n", plainTable)
	fmt.Printf("  - Sharded: %s\n", shardedTable)

	profile := os.Getenv("LATTICE_E2E_PROFILE")
	if profile == "" {
		profile = defaultProfile
	}

	// Initialize AWS client (uses region from profile config)
	ctx := context.Background()
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithSharedConfigProfile(profile),
	)
	if err != nil {
		fmt.Printf("Failed to load AWS config: %v\n", err)
		os.Exit(1)
	}

	ddbClient = dynamodb.NewFromConfig(cfg)

	if err := createTables(ctx); err != nil {
		fmt.Printf("Failed to create tables: %v\n", err)
		deleteTables(ctx)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cfgDB := store.DefaultConfig()
	cfgDB.Logger = logger

	plainDB, err = store.New(dynamokv.New(ddbClient, plainTable), []*schema.Table{users, posts}, cfgDB)
	if err != nil {
		fmt.Printf("Failed to create db: %v\n", err)
		os.Exit(1)
	}
	shardedDB, err = store.New(
		dynamokv.NewWithConfig(ddbClient, shardedTable, dynamokv.Config{NumShards: 4}),
		[]*schema.Table{users, posts}, cfgDB)
	if err != nil {
		fmt.Printf("Failed to create db: %v\n", err)
		os.Exit(1)
	}

	// Run tests
	code := m.Run()

	deleteTables(ctx)
	os.Exit(code)
}

func createTables(ctx context.Context) error {
	fmt.Println("Creating test tables...")
	for _, name := range []string{plainTable, shardedTable} {
		if err := dynamokv.CreateTable(ctx, ddbClient, name, 2*time.Minute); err != nil {
			return err
		}
	}
	fmt.Println("All tables created and active")
	return nil
}

func deleteTables(ctx context.Context) {
	fmt.Println("Deleting test tables...")
	for _, name := range []string{plainTable, shardedTable} {
		if err := dynamokv.DeleteTable(ctx, ddbClient, name); err != nil {
			fmt.Printf("Warning: failed to delete table %s: %v\n", name, err)
		}
	}
	fmt.Println("Tables deleted")
}

// --- Helpers ---

// forEachDB runs fn against the plain and the sharded table.
func forEachDB(t *testing.T, fn func(t *testing.T, db *store.DB)) {
	t.Run("plain", func(t *testing.T) { fn(t, plainDB) })
	t.Run("sharded", func(t *testing.T) { fn(t, shardedDB) })
}

func table(t *testing.T, db *store.DB, name string) *store.Table {
	t.Helper()
	tbl, err := db.Table(name)
	if err != nil {
		t.Fatalf("Table(%s) failed: %v", name, err)
	}
	return tbl
}

// newUser returns values with unique id and email. role is suffixed with
// the test ID so index lookups only see this run's records.
func newUser(role string) map[string]any {
	id := uuid.New().String()
	return map[string]any{
		"id":    id,
		"email": id + "@example.com",
		"role":  role + "-" + testID,
	}
}

// --- CRUD Tests ---

func TestCreate_EveryAccessKey(t *testing.T) {
	forEachDB(t, func(t *testing.T, db *store.DB) {
		ctx := context.Background()
		u := table(t, db, "users")

		values := newUser("create")
		created, err := u.Create(ctx, values)
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if created.Versionstamp == "" {
			t.Fatal("expected versionstamp to be set")
		}

		lookups := []map[string]any{
			{"id": values["id"]},
			{"email": values["email"]},
			{"role": values["role"]},
		}
		for _, where := range lookups {
			got, err := u.FindFirst(ctx, store.Query{Where: where})
			if err != nil {
				t.Fatalf("FindFirst(%v) failed: %v", where, err)
			}
			if got.Versionstamp != created.Versionstamp {
				t.Errorf("expected versionstamp %s via %v, got %s", created.Versionstamp, where, got.Versionstamp)
			}
		}
	})
}

func TestCreate_DuplicateUnique(t *testing.T) {
	forEachDB(t, func(t *testing.T, db *store.DB) {
		ctx := context.Background()
		u := table(t, db, "users")

		first := newUser("dup")
		if _, err := u.Create(ctx, first); err != nil {
			t.Fatalf("Create failed: %v", err)
		}

		second := newUser("dup")
		second["email"] = first["email"]
		_, err := u.Create(ctx, second)

		var createErr *store.CreateError
		if !errors.As(err, &createErr) {
			t.Fatalf("expected CreateError, got %v", err)
		}
		if !errors.Is(err, store.ErrDuplicateValue) {
			t.Errorf("expected ErrDuplicateValue, got %v", err)
		}

		if _, err := u.FindFirst(ctx, store.Query{Where: map[string]any{"id": second["id"]}}); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("expected second record to be absent, got %v", err)
		}
	})
}

func TestCreateMany_SplitsIntoChunks(t *testing.T) {
	forEachDB(t, func(t *testing.T, db *store.DB) {
		ctx := context.Background()
		u := table(t, db, "users")

		// 3 keys per user, more than one transaction holds
		items := make([]map[string]any, 40)
		role := ""
		for i := range items {
			items[i] = newUser("bulk")
			role = items[i]["role"].(string)
		}

		created, err := u.CreateMany(ctx, items)
		if err != nil {
			t.Fatalf("CreateMany failed: %v", err)
		}
		if len(created) != len(items) {
			t.Fatalf("expected %d records, got %d", len(items), len(created))
		}

		found, err := u.FindMany(ctx, store.Query{Where: map[string]any{"role": role}})
		if err != nil {
			t.Fatalf("FindMany failed: %v", err)
		}
		if len(found) != len(items) {
			t.Errorf("expected %d records by role, got %d", len(items), len(found))
		}
	})
}

func TestUpdate_MovesIndexKeys(t *testing.T) {
	forEachDB(t, func(t *testing.T, db *store.DB) {
		ctx := context.Background()
		u := table(t, db, "users")

		values := newUser("before")
		if _, err := u.Create(ctx, values); err != nil {
			t.Fatalf("Create failed: %v", err)
		}

		after := "after-" + testID
		updated, err := u.Update(ctx, map[string]any{"id": values["id"]}, map[string]any{"role": after})
		if err != nil {
			t.Fatalf("Update failed: %v", err)
		}

		old, err := u.FindMany(ctx, store.Query{Where: map[string]any{"role": values["role"], "id": values["id"]}})
		if err != nil {
			t.Fatalf("FindMany failed: %v", err)
		}
		if len(old) != 0 {
			t.Errorf("expected no record under the old role, got %d", len(old))
		}

		got, err := u.FindFirst(ctx, store.Query{Where: map[string]any{"role": after, "id": values["id"]}})
		if err != nil {
			t.Fatalf("FindFirst by new role failed: %v", err)
		}
		if got.Versionstamp != updated.Versionstamp {
			t.Errorf("expected versionstamp %s, got %s", updated.Versionstamp, got.Versionstamp)
		}
	})
}

func TestUpdate_StaleVersionstamp(t *testing.T) {
	forEachDB(t, func(t *testing.T, db *store.DB) {
		ctx := context.Background()
		u := table(t, db, "users")

		values := newUser("stale")
		created, err := u.Create(ctx, values)
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		where := map[string]any{"id": values["id"]}
		if _, err := u.Update(ctx, where, map[string]any{"age": 1}); err != nil {
			t.Fatalf("first Update failed: %v", err)
		}

		_, err = u.Update(ctx, where, map[string]any{"age": 2, "versionstamp": created.Versionstamp})
		if !errors.Is(err, store.ErrConcurrentModification) {
			t.Errorf("expected ErrConcurrentModification, got %v", err)
		}
		if !errors.Is(err, kv.ErrCheckFailed) {
			t.Errorf("expected kv.ErrCheckFailed in chain, got %v", err)
		}
	})
}

func TestUpsertMany(t *testing.T) {
	forEachDB(t, func(t *testing.T, db *store.DB) {
		ctx := context.Background()
		u := table(t, db, "users")

		existing := newUser("upsert")
		if _, err := u.Create(ctx, existing); err != nil {
			t.Fatalf("Create failed: %v", err)
		}

		changed := map[string]any{"id": existing["id"], "email": existing["email"], "role": existing["role"], "age": 99}
		fresh := newUser("upsert")
		inserted, err := u.UpsertMany(ctx, []map[string]any{changed, fresh})
		if err != nil {
			t.Fatalf("UpsertMany failed: %v", err)
		}
		if len(inserted) != 1 || inserted[0].Get("id") != fresh["id"] {
			t.Fatalf("expected only the fresh record, got %v", inserted)
		}

		got, err := u.FindFirst(ctx, store.Query{Where: map[string]any{"id": existing["id"]}})
		if err != nil {
			t.Fatalf("FindFirst failed: %v", err)
		}
		if got.Get("age") != nil {
			t.Errorf("expected existing record untouched, got age %v", got.Get("age"))
		}
	})
}

func TestDeleteMany(t *testing.T) {
	forEachDB(t, func(t *testing.T, db *store.DB) {
		ctx := context.Background()
		u := table(t, db, "users")

		items := []map[string]any{newUser("gone"), newUser("gone"), newUser("gone")}
		if _, err := u.CreateMany(ctx, items); err != nil {
			t.Fatalf("CreateMany failed: %v", err)
		}
		role := items[0]["role"]

		n, err := u.DeleteMany(ctx, map[string]any{"role": role})
		if err != nil {
			t.Fatalf("DeleteMany failed: %v", err)
		}
		if n != len(items) {
			t.Errorf("expected %d deleted, got %d", len(items), n)
		}

		for _, item := range items {
			_, err := u.FindFirst(ctx, store.Query{Where: map[string]any{"email": item["email"]}})
			if !errors.Is(err, store.ErrNotFound) {
				t.Errorf("expected unique copy of %s removed, got %v", item["id"], err)
			}
		}
	})
}

// --- Relation Tests ---

func TestInclude_AuthorWithPosts(t *testing.T) {
	forEachDB(t, func(t *testing.T, db *store.DB) {
		ctx := context.Background()
		u := table(t, db, "users")
		p := table(t, db, "posts")

		author := newUser("author")
		if _, err := u.Create(ctx, author); err != nil {
			t.Fatalf("Create author failed: %v", err)
		}
		for _, title := range []string{"first", "second"} {
			if _, err := p.Create(ctx, map[string]any{
				"id":       uuid.New().String(),
				"authorId": author["id"],
				"title":    title,
			}); err != nil {
				t.Fatalf("Create post failed: %v", err)
			}
		}

		got, err := u.FindFirst(ctx, store.Query{
			Where: map[string]any{"id": author["id"]},
			Include: map[string]*store.Query{
				"posts": {Include: map[string]*store.Query{"author": nil}},
			},
		})
		if err != nil {
			t.Fatalf("FindFirst failed: %v", err)
		}

		many := got.Many("posts")
		if len(many) != 2 {
			t.Fatalf("expected 2 posts, got %d", len(many))
		}
		for _, post := range many {
			if a := post.One("author"); a == nil || a.Get("id") != author["id"] {
				t.Errorf("expected post author %s, got %v", author["id"], a)
			}
		}
	})
}
