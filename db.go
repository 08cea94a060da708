package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"ble-adv-parser/config"

	"cloud.google.com/go/cloudsqlconn"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// ErrNotFound is returned when a gateway or device row does not exist.
var ErrNotFound = errors.New("not found")

// Gateway is a row of the gateways table.
type Gateway struct {
	Name     string
	HWType   string
	ClientID string
}

// DeviceRecord is a row of the devices table.
type DeviceRecord struct {
	Name     string
	DeviceID string
	HWType   string
}

type pgStore struct {
	pool   *pgxpool.Pool
	dialer *cloudsqlconn.Dialer
	logger *zap.Logger
}

func connectDB(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*pgStore, error) {
	dsn := fmt.Sprintf("user=%s password=%s database=%s sslmode=disable", cfg.User, cfg.Password, cfg.Name)

	opts := []cloudsqlconn.Option{}
	if cfg.PrivateIP {
		opts = append(opts, cloudsqlconn.WithDefaultDialOptions(cloudsqlconn.WithPrivateIP()))
	}
	d, err := cloudsqlconn.NewDialer(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("cloudsql dialer: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("pgxpool.ParseConfig: %w", err)
	}
	poolCfg.ConnConfig.DialFunc = func(ctx context.Context, network, addr string) (net.Conn, error) {
		return d.Dial(ctx, cfg.Instance)
	}
	poolCfg.MinConns = 0
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("pgxpool.NewWithConfig: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		_ = d.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	logger.Info("connected to database", zap.String("instance", cfg.Instance), zap.Bool("private_ip", cfg.PrivateIP))

	return &pgStore{pool: pool, dialer: d, logger: logger}, nil
}

func (s *pgStore) Close() {
	s.pool.Close()
	if err := s.dialer.Close(); err != nil {
		s.logger.Warn("closing cloudsql dialer", zap.Error(err))
	}
}

// macHexToBytea converts a mac in hex (with or without separators) to raw 6 bytes.
func macHexToBytea(s string) ([]byte, error) {
	s = macSeparators.Replace(strings.TrimSpace(s))
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex mac %q: %w", s, err)
	}
	if len(b) != 6 {
		return nil, fmt.Errorf("mac must be 6 bytes, got %d", len(b))
	}
	return b, nil
}

func (s *pgStore) FetchGateway(ctx context.Context, mac string) (Gateway, error) {
	var gw Gateway
	bmac, err := macHexToBytea(mac)
	if err != nil {
		return gw, err
	}
	err = s.pool.QueryRow(ctx,
		`SELECT gateway_name, gateway_hw_type, client_id
			FROM gateways
			WHERE gateway_mac = $1`, bmac).Scan(&gw.Name, &gw.HWType, &gw.ClientID)
	if errors.Is(err, pgx.ErrNoRows) {
		return gw, fmt.Errorf("gateway %s: %w", mac, ErrNotFound)
	}
	if err != nil {
		return gw, fmt.Errorf("fetch gateway: %w", err)
	}
	return gw, nil
}

func (s *pgStore) FetchDevice(ctx context.Context, mac string) (DeviceRecord, error) {
	var dev DeviceRecord
	bmac, err := macHexToBytea(mac)
	if err != nil {
		return dev, err
	}
	err = s.pool.QueryRow(ctx,
		`SELECT device_name, device_id, device_hw_type
			FROM devices
			WHERE device_mac = $1`, bmac).Scan(&dev.Name, &dev.DeviceID, &dev.HWType)
	if errors.Is(err, pgx.ErrNoRows) {
		return dev, fmt.Errorf("device %s: %w", mac, ErrNotFound)
	}
	if err != nil {
		return dev, fmt.Errorf("fetch device: %w", err)
	}
	return dev, nil
}

// UpdateParsedJSON stores v in parser_json of the existing backend_message row.
func (s *pgStore) UpdateParsedJSON(ctx context.Context, backendID int64, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal parsed json: %w", err)
	}
	ct, err := s.pool.Exec(ctx, `UPDATE backend_message SET parser_json = $2 WHERE id = $1`, backendID, b)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("no backend_message row found for id=%d", backendID)
	}
	return nil
}
