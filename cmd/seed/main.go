// seed carga registros de client_application y user_profile en el backend
// configurado. Pensado para entornos dev y tests de integración.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"time"

	"github.com/dropDatabas3/indieauth/internal/app"
	"github.com/dropDatabas3/indieauth/internal/config"
	"github.com/dropDatabas3/indieauth/internal/record"
	"github.com/dropDatabas3/indieauth/internal/storage"
)

func main() {
	var (
		flagConfig  = flag.String("config", "", "ruta a config.yaml (opcional, env manda)")
		flagMe      = flag.String("me", "https://example.com/", "profile URL del usuario")
		flagName    = flag.String("name", "Example User", "nombre del perfil")
		flagEmail   = flag.String("email", "", "email del perfil (opcional)")
		flagClient  = flag.String("client", "https://micropub.example.com/", "client_id de la app")
		flagCName   = flag.String("client-name", "Micropub client", "nombre de la app")
		flagRedir   = flag.String("redirect", "https://micropub.example.com/callback", "redirect_uri de la app")
		flagTimeout = flag.Duration("timeout", 10*time.Second, "timeout total")
	)
	flag.Parse()

	cfg, err := config.Load(*flagConfig)
	if err != nil {
		log.Fatalf("seed: config: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), *flagTimeout)
	defer cancel()

	c, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("seed: %v", err)
	}
	defer c.Close()

	me, err := record.CanonicalizeMe(*flagMe)
	if err != nil {
		log.Fatalf("seed: me: %v", err)
	}

	if _, err := c.Stores.Profiles.StoreOne(ctx, record.UserProfile{
		Me:    me,
		Name:  *flagName,
		URL:   me,
		Email: *flagEmail,
	}); err != nil && !errors.Is(err, storage.ErrConflict) {
		log.Fatalf("seed: user_profile: %v", err)
	}

	if _, err := c.Stores.Clients.StoreOne(ctx, record.ClientApplication{
		ClientID:    *flagClient,
		ClientName:  *flagCName,
		ClientURI:   *flagClient,
		RedirectURI: *flagRedir,
	}); err != nil && !errors.Is(err, storage.ErrConflict) {
		log.Fatalf("seed: client_application: %v", err)
	}

	log.Printf("seed: ok (backend=%s me=%s client=%s)", cfg.Storage.Backend, me, *flagClient)
}
