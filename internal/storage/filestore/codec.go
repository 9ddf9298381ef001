package filestore

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/makkenzo/device-license-api/internal/domain/activation"
	"github.com/makkenzo/device-license-api/internal/domain/license"
)

// License lines: key;createdAt;expiresAt;active;reserved;ownerName;reserved
// The two reserved columns hold the legacy "used" flag and "activatedAt"
// timestamp. They are written as "false" and "" and ignored on read.
const (
	licenseFieldCount    = 7
	licenseMinFields     = 4
	activationFieldCount = 3
)

const timeLayout = time.RFC3339Nano

func encodeLicense(l *license.License) string {
	return strings.Join([]string{
		l.Key,
		l.CreatedAt.UTC().Format(timeLayout),
		l.ExpiresAt.UTC().Format(timeLayout),
		strconv.FormatBool(l.Active),
		"false",
		l.OwnerName,
		"",
	}, fieldSeparator)
}

func decodeLicense(line string) (*license.License, error) {
	parts := strings.Split(line, fieldSeparator)
	if len(parts) < licenseMinFields || len(parts) > licenseFieldCount {
		return nil, fmt.Errorf("expected %d to %d fields, got %d", licenseMinFields, licenseFieldCount, len(parts))
	}

	key := strings.TrimSpace(parts[0])
	if key == "" {
		return nil, fmt.Errorf("empty license key")
	}

	createdAt, err := time.Parse(timeLayout, strings.TrimSpace(parts[1]))
	if err != nil {
		return nil, fmt.Errorf("createdAt: %w", err)
	}
	expiresAt, err := time.Parse(timeLayout, strings.TrimSpace(parts[2]))
	if err != nil {
		return nil, fmt.Errorf("expiresAt: %w", err)
	}

	lic := &license.License{
		Key:       key,
		CreatedAt: createdAt.UTC(),
		ExpiresAt: expiresAt.UTC(),
		Active:    strings.TrimSpace(parts[3]) == "true",
	}
	if len(parts) > 5 {
		lic.OwnerName = parts[5]
	}
	return lic, nil
}

func encodeActivation(a *activation.Activation) string {
	return strings.Join([]string{
		a.ClientID,
		a.Key,
		a.ActivatedAt.UTC().Format(timeLayout),
	}, fieldSeparator)
}

func decodeActivation(line string) (*activation.Activation, error) {
	parts := strings.Split(line, fieldSeparator)
	if len(parts) != activationFieldCount {
		return nil, fmt.Errorf("expected %d fields, got %d", activationFieldCount, len(parts))
	}

	clientID := strings.TrimSpace(parts[0])
	key := strings.TrimSpace(parts[1])
	if clientID == "" || key == "" {
		return nil, fmt.Errorf("empty client id or license key")
	}

	activatedAt, err := time.Parse(timeLayout, strings.TrimSpace(parts[2]))
	if err != nil {
		return nil, fmt.Errorf("activatedAt: %w", err)
	}

	return &activation.Activation{
		ClientID:    clientID,
		Key:         key,
		ActivatedAt: activatedAt.UTC(),
	}, nil
}
