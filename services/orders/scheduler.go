package main

import (
	"context"
	"log"
	"time"
)

// PassRunner executa uma passada de reconciliação
type PassRunner interface {
	RunPass(ctx context.Context) (PassSummary, error)
}

// Scheduler dispara a reconciliação em período fixo
type Scheduler struct {
	runner     PassRunner
	interval   time.Duration
	runOnStart bool
}

// NewScheduler cria o agendador; interval <= 0 usa 1 hora
func NewScheduler(runner PassRunner, interval time.Duration, runOnStart bool) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{
		runner:     runner,
		interval:   interval,
		runOnStart: runOnStart,
	}
}

// Run bloqueia até ctx ser cancelado. Passadas nunca se sobrepõem: um tick durante uma passada
// em andamento é descartado. No shutdown, Run só retorna depois que a passada atual termina.
func (s *Scheduler) Run(ctx context.Context) {
	log.Printf("⏰ [SCHEDULER] Reconciliation every %s", s.interval)

	if s.runOnStart {
		s.runPass(ctx)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("🛑 [SCHEDULER] Stopped")
			return
		case <-ticker.C:
			s.runPass(ctx)
		}
	}
}

func (s *Scheduler) runPass(ctx context.Context) {
	log.Printf("▶️ [SCHEDULER] Running weather verification pass...")
	if _, err := s.runner.RunPass(ctx); err != nil {
		log.Printf("❌ [SCHEDULER] Pass aborted, next tick retries: %v", err)
	}
}
