package main

import (
	"log"
	"net/http"

	"github.com/protodarkstar/spaceport/internal/config"
	httpd "github.com/protodarkstar/spaceport/internal/delivery/http"
	"github.com/protodarkstar/spaceport/internal/paypal"
	"github.com/protodarkstar/spaceport/internal/repository"
	"github.com/protodarkstar/spaceport/internal/usecase"
)

func main() {
	cfg := config.Load()

	repo, err := repository.NewSQLiteRepo(cfg.SQLiteDSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer repo.Close()

	verifier := paypal.NewClient(cfg.VerifyURL)
	uc := usecase.NewIPNUsecase(repo, verifier, cfg.ReceiverEmail, cfg.Currency)
	h := httpd.NewHandler(uc, repo, cfg.IPNRouteSecret)

	r := h.Routes(httpd.SigConfig{
		Secret:        cfg.HMACSecret,
		MaxAgeSeconds: cfg.SigMaxAgeSeconds,
	})

	mode := "production"
	if cfg.Sandbox {
		mode = "sandbox"
	}
	log.Printf("IPN route is: /ipn/%s (%s mode)", cfg.IPNRouteSecret, mode)

	addr := ":" + cfg.AppPort
	log.Printf("Server listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, r))
}
