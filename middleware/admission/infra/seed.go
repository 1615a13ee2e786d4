package infra

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Seed é o conteúdo estático carregado uma vez no startup.
type Seed struct {
	// Endpoints são fragmentos de path proibidos (match por substring).
	Endpoints []string `yaml:"endpoints"`
	// Addresses são endereços bloqueados desde o início.
	Addresses []string `yaml:"addresses"`
}

// DefaultForbiddenEndpoints retorna uma lista nova a cada chamada com paths
// comuns de varredura. Quem chama pode alterar o slice à vontade.
func DefaultForbiddenEndpoints() []string {
	return []string{
		"/.env",
		"/.git/",
		"/wp-admin",
		"/wp-login.php",
		"/phpmyadmin",
		"/cgi-bin/",
		"/.aws/",
		"/server-status",
	}
}

// LoadSeed lê o arquivo de seed.
//
// .yaml/.yml: {endpoints: [...], addresses: [...]}. Outras extensões: um
// fragmento de endpoint por linha, com comentários "#". Arquivo ausente
// retorna Seed vazio e erro que satisfaz errors.Is(err, fs.ErrNotExist);
// o chamador decide se isso é só um warning.
func LoadSeed(path string) (Seed, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Seed{}, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Seed{}, fmt.Errorf("seed %s: %w", path, err)
		}
		return Seed{}, fmt.Errorf("read seed %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var s Seed
		if err := yaml.Unmarshal(raw, &s); err != nil {
			return Seed{}, fmt.Errorf("decode seed %s: %w", path, err)
		}
		s.Endpoints = cleanList(s.Endpoints)
		s.Addresses = cleanList(s.Addresses)
		return s, nil
	default:
		return Seed{Endpoints: parseLines(raw)}, nil
	}
}

func parseLines(raw []byte) []string {
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(raw))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// MergeEndpoints une listas removendo vazios e duplicados, preservando a ordem.
func MergeEndpoints(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, l := range lists {
		for _, v := range l {
			v = strings.TrimSpace(v)
			if v == "" {
				continue
			}
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}
