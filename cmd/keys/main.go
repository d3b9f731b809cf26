// keys administra el JWKS del servidor: genera el set inicial, rota claves
// (agrega una nueva manteniendo las anteriores para verificación) y lista o
// exporta la vista pública.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/dropDatabas3/indieauth/internal/jwt"
	"github.com/dropDatabas3/indieauth/internal/util/atomicwrite"
)

func main() {
	var (
		flagEnvFile = flag.String("env-file", ".env", "ruta a .env")
		flagPath    = flag.String("keys", "data/jwks.json", "ruta al archivo JWKS")
		cmdGen      = flag.Bool("gen", false, "genera un JWKS nuevo (falla si ya existe)")
		flagN       = flag.Int("n", 2, "cantidad de claves a generar con -gen")
		cmdRotate   = flag.Bool("rotate", false, "agrega una clave nueva al set existente")
		cmdList     = flag.Bool("list", false, "lista los kid del set")
		cmdPublic   = flag.Bool("public", false, "imprime la vista pública del set (sin seeds)")
	)
	flag.Parse()

	if *flagEnvFile != "" {
		_ = godotenv.Load(*flagEnvFile)
	}
	if v := os.Getenv("JWT_KEYS_PATH"); v != "" && *flagPath == "data/jwks.json" {
		*flagPath = v
	}

	switch {
	case *cmdGen:
		if _, err := os.Stat(*flagPath); err == nil {
			log.Fatalf("keys: %s ya existe, usar -rotate", *flagPath)
		}
		set, err := jwt.GenerateJWKS(*flagN)
		if err != nil {
			log.Fatalf("keys: %v", err)
		}
		save(*flagPath, set)
		fmt.Printf("JWKS generado con %d claves en %s\n", len(set.Keys), *flagPath)

	case *cmdRotate:
		set := load(*flagPath)
		fresh, err := jwt.GenerateJWKS(1)
		if err != nil {
			log.Fatalf("keys: %v", err)
		}
		set.Keys = append(set.Keys, fresh.Keys...)
		save(*flagPath, set)
		fmt.Printf("clave %s agregada, total %d\n", fresh.Keys[0].KID, len(set.Keys))

	case *cmdList:
		set := load(*flagPath)
		for _, k := range set.Keys {
			fmt.Printf("%s  %s/%s\n", k.KID, k.Kty, k.Crv)
		}

	case *cmdPublic:
		out, err := json.MarshalIndent(load(*flagPath).Public(), "", "  ")
		if err != nil {
			log.Fatalf("keys: %v", err)
		}
		fmt.Println(string(out))

	default:
		flag.Usage()
		os.Exit(2)
	}
}

func load(path string) *jwt.JWKS {
	b, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("keys: leer %s: %v", path, err)
	}
	var set jwt.JWKS
	if err := json.Unmarshal(b, &set); err != nil {
		log.Fatalf("keys: parsear %s: %v", path, err)
	}
	return &set
}

func save(path string, set *jwt.JWKS) {
	out, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		log.Fatalf("keys: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.Fatalf("keys: %v", err)
	}
	if err := atomicwrite.AtomicWriteFile(path, out, 0o600); err != nil {
		log.Fatalf("keys: escribir %s: %v", path, err)
	}
}
