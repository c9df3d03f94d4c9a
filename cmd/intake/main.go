// Subtype Intake Terminal
//
// Walks a clinician through the intake form, validates it locally and asks
// the prediction service for the diabetes subtype.
//
// To run:
//
//	go run ./cmd/intake -qr
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/config"
	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/form"
	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/prediction"
	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/services"
	"github.com/Jainish-S/playground/apps/subtype-intake-go/internal/validator"
)

func main() {
	showQR := flag.Bool("qr", false, "Print a QR code linking to each prediction")
	flag.Parse()

	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[intake] %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client := prediction.NewFromConfig(cfg, nil)
	defer client.Close()

	v := validator.New(validator.Config{
		ConsentRequired: cfg.ConsentRequired,
		RangeChecks:     cfg.RangeChecksEnabled,
		Conversion: validator.Conversion{
			GlucoseMgPerMmol: cfg.GlucoseMgPerMmol,
			CPeptideNgToNmol: cfg.CPeptideNgToNmol,
		},
	})

	var qr *services.QRService
	if *showQR {
		qr = services.NewQRService(cfg.BaseURL)
	}

	term := newTerminal(os.Stdin, os.Stdout, form.NewSession(v), client, qr, cfg.RequestTimeout())
	if err := term.Run(ctx); err != nil {
		log.Fatalf("[intake] %v", err)
	}
}
