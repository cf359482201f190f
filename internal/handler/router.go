package handler

import (
	_ "embed"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

//go:embed openapi.json
var openAPISpec []byte

// NewRouter builds the HTTP API.
func NewRouter(h *WalletHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	r.Route("/v1/wallet", func(r chi.Router) {
		r.Get("/", h.GetWallet)
		r.Delete("/", h.DeleteWallet)
		r.Get("/qr", h.GetWalletQR)
		r.Post("/mnemonic", h.CreateMnemonicWallet)
		r.Post("/import", h.ImportMnemonicWallet)
		r.Post("/import-key", h.ImportPrivateKey)
		r.Post("/random", h.CreateRandomWallet)
		r.Post("/rekey", h.Rekey)
		r.Post("/addresses", h.DerivedAddresses)
	})

	r.Route("/v1/session", func(r chi.Router) {
		r.Get("/", h.GetSession)
		r.Post("/connect", h.Connect)
		r.Post("/credential", h.SupplyCredential)
		r.Post("/lock", h.Lock)
		r.Post("/disconnect", h.Disconnect)
	})

	r.Get("/v1/balances", h.GetBalances)
	r.Post("/v1/balances/refresh", h.RefreshBalances)
	r.Post("/v1/watch", h.WatchAddress)
	r.Delete("/v1/watch/{address}", h.UnwatchAddress)

	r.Post("/v1/pay", h.Pay)
	r.Post("/v1/sign", h.Sign)
	r.Get("/v1/history", h.History)
	r.Post("/v1/tx/{txid}/resubmit", h.Resubmit)
	if h.records != nil {
		r.Post("/v1/records", h.SubmitRecord)
		r.Get("/v1/records", h.ListRecords)
	}

	r.Get("/swagger/doc.json", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(openAPISpec)
	})
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	return otelhttp.NewHandler(r, "walletd")
}
