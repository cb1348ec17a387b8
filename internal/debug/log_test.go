package debug_test

import (
	"testing"

	"github.com/mrkline/backpak/internal/debug"
	"github.com/mrkline/backpak/internal/objid"
)

func BenchmarkLogStatic(b *testing.B) {
	for i := 0; i < b.N; i++ {
		debug.Log("Static string")
	}
}

func BenchmarkLogIDStr(b *testing.B) {
	id := objid.FromData([]byte("benchmark"))

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		debug.Log("id: %v", id)
	}
}

func BenchmarkLogIDString(b *testing.B) {
	id := objid.FromData([]byte("benchmark"))

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		debug.Log("id: %s", id)
	}
}
