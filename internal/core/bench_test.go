package core

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func benchmarkPresenceBroadcast(b *testing.B, sessions int) {
	nop := zerolog.Nop()
	reg := NewRegistry()
	presence := NewPresence(reg, &nop)

	all := make([]*Session, 0, sessions)
	for i := 0; i < sessions; i++ {
		s := NewSession()
		userID := int64(i + 1)
		if err := s.Identify(userID); err != nil {
			b.Fatal(err)
		}
		reg.Register(userID, s)
		all = append(all, s)
	}
	defer func() {
		for _, s := range all {
			s.Close()
		}
	}()

	// Drain every session but the first so buffers never fill up.
	target := all[0]
	for _, s := range all[1:] {
		go func(s *Session) {
			for {
				select {
				case <-s.Events:
				case <-s.Done():
					return
				}
			}
		}(s)
	}

	at := time.Now()
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		presence.Online(int64(sessions+1), at)
		<-target.Events
	}
}

func BenchmarkPresenceBroadcast_10(b *testing.B)  { benchmarkPresenceBroadcast(b, 10) }
func BenchmarkPresenceBroadcast_100(b *testing.B) { benchmarkPresenceBroadcast(b, 100) }
func BenchmarkPresenceBroadcast_500(b *testing.B) { benchmarkPresenceBroadcast(b, 500) }
