package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/makkenzo/device-license-api/internal/util"
)

func main() {
	fromStdin := flag.Bool("stdin", false, "Hash a secret read from stdin instead of generating one")
	flag.Parse()

	var secret string
	if *fromStdin {
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			log.Fatalf("Failed to read secret from stdin: %v", err)
		}
		secret = strings.TrimSpace(line)
		if secret == "" {
			log.Fatal("Secret read from stdin is empty")
		}
	} else {
		generated, err := util.GenerateAdminSecret()
		if err != nil {
			log.Fatalf("Failed to generate admin secret: %v", err)
		}
		secret = generated
		fmt.Printf("Generated admin secret (SAVE THIS securely!):\n%s\n\n", secret)
	}

	hash, err := util.HashAdminSecret(secret)
	if err != nil {
		log.Fatalf("Failed to hash admin secret: %v", err)
	}

	fmt.Printf("Set ADMIN_SECRETHASH (or admin.secretHash) to:\n%s\n", hash)
}
