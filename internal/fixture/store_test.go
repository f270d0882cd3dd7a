// internal/fixture/store_test.go
package fixture

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/demoqa-e2e/api/schemas"
	"go.uber.org/zap/zaptest"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "support", "data.json"), zaptest.NewLogger(t))
	require.NoError(t, err)
	return s
}

func TestStore_LoadMissingIsNotAnError(t *testing.T) {
	s := newStore(t)
	creds, ok, err := s.Load()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, schemas.Credentials{}, creds)
}

func TestStore_SaveThenLoad(t *testing.T) {
	s := newStore(t)
	want := schemas.Credentials{UserName: "testuser_1", Password: "a1!Axyz12345"}
	require.NoError(t, s.Save(want))

	got, ok, err := s.Load()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, want, got)

	raw, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"userName": "testuser_1"`)

	entries, err := os.ReadDir(filepath.Dir(s.Path()))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestStore_SaveRejectsIncomplete(t *testing.T) {
	s := newStore(t)
	assert.Error(t, s.Save(schemas.Credentials{UserName: "only-name"}))
	_, ok, err := s.Load()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_Corrupt(t *testing.T) {
	tests := []struct {
		name    string
		content string
		reason  string
	}{
		{"empty file", "  \n", "empty"},
		{"not json", "{userName:", "invalid json"},
		{"missing password", `{"userName":"bob"}`, "missing password"},
		{"missing user", `{"password":"x"}`, "missing userName"},
		{"wrong type", `{"userName":42,"password":"x"}`, "not a string"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0o755))
			require.NoError(t, os.WriteFile(s.Path(), []byte(tt.content), 0o644))

			_, ok, err := s.Load()
			assert.False(t, ok)
			var fc *schemas.FixtureCorruptError
			require.ErrorAs(t, err, &fc)
			assert.Contains(t, fc.Reason, tt.reason)
			assert.Equal(t, s.Path(), fc.Path)
			assert.ErrorIs(t, err, schemas.ErrFixtureCorrupt)
		})
	}
}

func TestDecode_LegacyKey(t *testing.T) {
	creds, err := Decode([]byte(`{"username":"legacy","password":"p"}`))
	require.NoError(t, err)
	assert.Equal(t, "legacy", creds.UserName)

	creds, err = Decode([]byte(`{"userName":"new","username":"legacy","password":"p"}`))
	require.NoError(t, err)
	assert.Equal(t, "new", creds.UserName, "current key wins")
}

func TestStore_LoadOrCreate(t *testing.T) {
	s := newStore(t)
	calls := 0
	gen := func() (schemas.Credentials, error) {
		calls++
		return NewCredentials()
	}

	first, created, err := s.LoadOrCreate(gen)
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := s.LoadOrCreate(gen)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)
}

func TestStore_UpdateErrorWritesNothing(t *testing.T) {
	s := newStore(t)
	boom := errors.New("registration failed")
	_, err := s.Update(func(schemas.Credentials, bool) (schemas.Credentials, error) {
		return schemas.Credentials{}, boom
	})
	assert.ErrorIs(t, err, boom)
	_, statErr := os.Stat(s.Path())
	assert.True(t, os.IsNotExist(statErr))
}

func TestStore_ConcurrentUpdatesAreSerialized(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.json")
	const writers = 16

	var wg sync.WaitGroup
	createdCount := 0
	var mu sync.Mutex
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Separate Store values on one path share the same critical section.
			s, err := NewStore(path, nil)
			if !assert.NoError(t, err) {
				return
			}
			_, created, err := s.LoadOrCreate(NewCredentials)
			assert.NoError(t, err)
			if created {
				mu.Lock()
				createdCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, createdCount, "exactly one writer creates the fixture")

	s, err := NewStore(path, nil)
	require.NoError(t, err)
	_, ok, err := s.Load()
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGenerators(t *testing.T) {
	creds, err := NewCredentials()
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^testuser_\d+[a-z0-9]{4}$`), creds.UserName)
	assert.True(t, len(creds.Password) >= minPasswordLength)
	assert.Equal(t, passwordPrefix, creds.Password[:4])

	assert.Equal(t, "user", sanitize("!!!"))
	assert.Equal(t, "qa_bot1", sanitize("QA_Bot-1"))

	form, err := NewPracticeForm("", "fixtures/test-image.png")
	require.NoError(t, err)
	assert.Regexp(t, `^[^@]+@example\.com$`, form.Email)
	assert.Len(t, form.Mobile, 10)
	assert.Equal(t, []string{"Maths", "English"}, form.Subjects)

	bad, err := NewPracticeForm("not-an-email", "")
	require.NoError(t, err)
	assert.Equal(t, "not-an-email", bad.Email)
}

// FuzzDecode checks that arbitrary input either decodes to a complete record or
// fails with a FixtureCorruptError.
func FuzzDecode(f *testing.F) {
	f.Add([]byte(`{"userName":"a","password":"b"}`))
	f.Add([]byte(`{"username":"a"}`))
	f.Fuzz(func(t *testing.T, data []byte) {
		assertDecodeContract := func(input []byte) (schemas.Credentials, error) {
			creds, err := Decode(input)
			if err != nil {
				var fc *schemas.FixtureCorruptError
				if !errors.As(err, &fc) {
					t.Fatalf("unexpected error type %T: %v", err, err)
				}
				return creds, err
			}
			if !creds.Complete() {
				t.Fatalf("decoded incomplete credentials: %+v", creds)
			}
			return creds, nil
		}
		_, _ = assertDecodeContract(data)

		var doc struct {
			UserName string
			Legacy   string
			Password string
		}
		if err := fuzz.NewConsumer(data).GenerateStruct(&doc); err != nil {
			return
		}
		encoded, err := json.Marshal(map[string]string{"userName": doc.UserName, "username": doc.Legacy, "password": doc.Password})
		if err != nil {
			t.Fatal(err)
		}
		_, err = assertDecodeContract(encoded)
		wantOK := doc.Password != "" && (doc.UserName != "" || doc.Legacy != "")
		if wantOK != (err == nil) {
			t.Fatalf("doc %+v: want ok=%v, got err=%v", doc, wantOK, err)
		}
	})
}

func TestEnsurePicture(t *testing.T) {
	target := filepath.Join(t.TempDir(), "fixtures", "test-image.png")

	path, err := EnsurePicture(target)
	require.NoError(t, err)
	assert.Equal(t, target, path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), data[:4])

	// An existing file is not rewritten.
	require.NoError(t, os.WriteFile(path, []byte("keep"), 0o644))
	_, err = EnsurePicture(target)
	require.NoError(t, err)
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "keep", string(data))
}
