package diagnostics

import (
	"errors"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	return db
}

func TestNew(t *testing.T) {
	r := New(KindProtocol, "alice", errors.New("bad frame"))
	if r.Kind != KindProtocol || r.Username != "alice" || r.Message != "bad frame" {
		t.Errorf("New() = %+v", r)
	}
	if r.At.IsZero() {
		t.Error("At should be set")
	}
	if New(KindDecode, "", nil).Message != "" {
		t.Error("nil error should give empty message")
	}
}

func TestMemory_Limit(t *testing.T) {
	m := NewMemory(2)
	m.Record(Record{Kind: KindTransport, Message: "1"})
	m.Record(Record{Kind: KindProtocol, Message: "2"})
	m.Record(Record{Kind: KindTransport, Message: "3"})

	all := m.All()
	if len(all) != 2 || all[0].Message != "2" || all[1].Message != "3" {
		t.Errorf("All() = %+v", all)
	}
	if got := m.OfKind(KindTransport); len(got) != 1 || got[0].Message != "3" {
		t.Errorf("OfKind(transport) = %+v", got)
	}
}

func TestMulti(t *testing.T) {
	a, b := NewMemory(0), NewMemory(0)
	Multi{a, nil, b}.Record(Record{Kind: KindPublish})
	if len(a.All()) != 1 || len(b.All()) != 1 {
		t.Errorf("a=%d b=%d, want 1 each", len(a.All()), len(b.All()))
	}
}

func TestNewStore_NilDB(t *testing.T) {
	if _, err := NewStore(nil); err == nil {
		t.Fatal("expected error for nil db")
	}
}

func TestStore_RecordAndRecent(t *testing.T) {
	s, err := NewStore(testDB(t))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s.Record(Record{Kind: KindTransport, Username: "alice", Message: "dial refused", At: base})
	s.Record(Record{Kind: KindProtocol, Username: "alice", Message: "broker error", At: base.Add(time.Second)})
	s.Record(Record{Kind: KindTransport, Username: "alice", Message: "read reset", At: base.Add(2 * time.Second)})

	recent, err := s.Recent(2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("len = %d, want 2", len(recent))
	}
	if recent[0].Message != "read reset" || recent[1].Message != "broker error" {
		t.Errorf("Recent order = %+v", recent)
	}

	counts, err := s.CountByKind()
	if err != nil {
		t.Fatalf("CountByKind: %v", err)
	}
	if counts[KindTransport] != 2 || counts[KindProtocol] != 1 {
		t.Errorf("counts = %v", counts)
	}
}

func TestStore_RecentDefaultLimit(t *testing.T) {
	s, err := NewStore(testDB(t))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	for i := 0; i < 60; i++ {
		s.Record(New(KindDecode, "bob", errors.New("junk")))
	}
	recent, err := s.Recent(0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 50 {
		t.Errorf("len = %d, want 50", len(recent))
	}
}

// Compile-time interface compliance checks.
var (
	_ Recorder = Logger{}
	_ Recorder = Multi(nil)
	_ Recorder = (*Memory)(nil)
	_ Recorder = (*Store)(nil)
)
