package database

import (
	"strings"
	"testing"
)

// 埋め込みマイグレーションにup/downのペアが揃っていることを検証する
func TestMigrationsFS_ContainsUpAndDown(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		t.Fatalf("migrationsディレクトリの読み取りに失敗: %v", err)
	}

	if len(entries) == 0 {
		t.Fatal("マイグレーションファイルが存在しない")
	}

	ups := 0
	downs := 0
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups++
		case strings.HasSuffix(name, ".down.sql"):
			downs++
		default:
			t.Errorf("予期しないマイグレーションファイル名: %s", name)
		}
	}

	if ups != downs {
		t.Errorf("upとdownの数が一致しない: up=%d down=%d", ups, downs)
	}
}

// 初期スキーマに一意制約とカスケード削除が定義されていることを検証する
func TestInitMigration_Constraints(t *testing.T) {
	data, err := migrationsFS.ReadFile("migrations/000001_init.up.sql")
	if err != nil {
		t.Fatalf("初期マイグレーションの読み取りに失敗: %v", err)
	}
	schema := string(data)

	wantFragments := []string{
		"feed_url TEXT NOT NULL UNIQUE",
		"link TEXT NOT NULL UNIQUE",
		"PRIMARY KEY (user_id, article_id)",
		"UNIQUE (user_id, feed_id)",
		"ON DELETE CASCADE",
	}
	for _, frag := range wantFragments {
		if !strings.Contains(schema, frag) {
			t.Errorf("スキーマに %q が含まれるべき", frag)
		}
	}
}
