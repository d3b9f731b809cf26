// Cifra un DSN con la clave de SECRETBOX_MASTER_KEY para pegarlo en
// config.yaml (storage.postgres.dsn) o en POSTGRES_DSN.
//
//	go run ./tools <plaintext_dsn>
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/dropDatabas3/indieauth/internal/security/secretbox"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("uso: encrypt_dsn <plaintext_dsn>")
	}
	encrypted, err := secretbox.Encrypt(os.Args[1])
	if err != nil {
		log.Fatalf("encrypt: %v", err)
	}
	fmt.Println(encrypted)
}
