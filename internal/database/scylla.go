package database

import (
	"crypto/tls"
	"fmt"
	"log"
	"time"

	"github.com/gocql/gocql"

	"vitrine_back_end/internal/config"
)

// =============================================
// SCYLLA DB (journal des événements de paiement)
// =============================================

// ConnectScylla ouvre une session sur le keyspace du journal.
// Retourne nil sans erreur si aucun hôte n'est configuré.
func ConnectScylla(cfg config.ScyllaConfig) (*gocql.Session, error) {
	if len(cfg.Hosts) == 0 {
		log.Println("⚠️ SCYLLA_HOSTS non configuré, journal des paiements désactivé")
		return nil, nil
	}

	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Keyspace = cfg.Keyspace
	cluster.Consistency = gocql.Quorum
	cluster.Timeout = 5 * time.Second
	cluster.NumConns = 4
	cluster.ReconnectInterval = time.Second
	if cfg.Username != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.Username,
			Password: cfg.Password,
		}
	}
	if cfg.SSLEnabled {
		cluster.SslOpts = &gocql.SslOptions{
			Config:                 &tls.Config{MinVersion: tls.VersionTLS12},
			CaPath:                 cfg.CACertPath,
			EnableHostVerification: true,
		}
	}
	cluster.PoolConfig.HostSelectionPolicy = gocql.TokenAwareHostPolicy(gocql.RoundRobinHostPolicy())

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("erreur création session pour %s: %w", cfg.Keyspace, err)
	}
	log.Printf("✅ Session ScyllaDB ouverte pour keyspace '%s'", cfg.Keyspace)
	return session, nil
}
