package bridge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"sfbridge/internal/protocol"
	"sfbridge/internal/serialport"
	"sfbridge/internal/shared/constants"
)

// Role is the side a radio announces in its hello frames.
type Role string

const (
	RoleAP      Role = "AP"
	RoleSTA     Role = "STA"
	RoleUnknown Role = ""
)

// Identify listens on an open port until a hello frame names the radio's
// role, or the timeout passes. Radios announce periodically on boot and keep
// announcing, so a healthy link identifies well within a second.
func Identify(ctx context.Context, port serialport.Port, timeout time.Duration) Role {
	dec := protocol.NewDecoder()
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) && ctx.Err() == nil {
		if port.BytesAvailable() == 0 {
			time.Sleep(constants.IdentifyPollInterval)
			continue
		}
		data, err := port.ReadAvailable()
		if err != nil {
			return RoleUnknown
		}
		dec.Feed(data)
		for {
			fr, _, ok := dec.Pop()
			if !ok {
				break
			}
			if fr.Type != protocol.TypeHello {
				continue
			}
			switch strings.TrimSpace(lossyString(fr.Payload)) {
			case string(RoleAP):
				return RoleAP
			case string(RoleSTA):
				return RoleSTA
			}
		}
	}
	return RoleUnknown
}

// Scan probes candidate devices until it has found one AP and one STA.
// Devices that fail to open or never identify are skipped.
func Scan(ctx context.Context, candidates []string, baud int, timeout time.Duration, logger *zap.Logger) (apDev, staDev string, err error) {
	found := make(map[Role]string, 2)

	for _, dev := range candidates {
		if len(found) == 2 || ctx.Err() != nil {
			break
		}
		port, openErr := serialport.Open(dev, baud)
		if openErr != nil {
			logger.Debug("Scan skipping device", zap.String("device", dev), zap.Error(openErr))
			continue
		}
		role := Identify(ctx, port, timeout)
		_ = port.Close()

		switch role {
		case RoleUnknown:
			logger.Debug("Scan got no hello", zap.String("device", dev))
		default:
			if prev, dup := found[role]; dup {
				logger.Warn("Two devices claim the same role",
					zap.String("role", string(role)),
					zap.String("kept", prev),
					zap.String("ignored", dev))
				continue
			}
			logger.Info("Identified radio",
				zap.String("device", dev),
				zap.String("role", string(role)))
			found[role] = dev
		}
	}

	apDev, staDev = found[RoleAP], found[RoleSTA]
	if apDev == "" || staDev == "" {
		return "", "", fmt.Errorf("scan found AP=%q STA=%q among %d candidates", apDev, staDev, len(candidates))
	}
	return apDev, staDev, nil
}

// ResolveRoles verifies the configured AP/STA assignment against what the
// radios actually announce. With autofix enabled a swapped pair is corrected;
// otherwise mismatches are only warned about and the configured assignment
// stands. Returns the (possibly swapped) ports and whether a swap happened.
func ResolveRoles(ctx context.Context, apPort, staPort serialport.Port, timeout time.Duration, autofix bool, logger *zap.Logger) (serialport.Port, serialport.Port, bool) {
	apRole := Identify(ctx, apPort, timeout)
	staRole := Identify(ctx, staPort, timeout)

	logger.Info("Role check",
		zap.String("ap_device", apPort.Name()),
		zap.String("ap_announced", string(apRole)),
		zap.String("sta_device", staPort.Name()),
		zap.String("sta_announced", string(staRole)))

	switch {
	case apRole == RoleSTA && staRole == RoleAP:
		if autofix {
			logger.Warn("Radios are swapped, fixing role assignment")
			return staPort, apPort, true
		}
		logger.Warn("Radios appear swapped; keeping the configured assignment")

	case apRole != RoleUnknown && apRole == staRole:
		logger.Warn("Both radios announce the same role",
			zap.String("role", string(apRole)))

	case apRole == RoleUnknown || staRole == RoleUnknown:
		// A silent radio may simply be mid-boot. Proceed with the
		// configured assignment rather than refusing to start.
		logger.Warn("Could not confirm both roles, proceeding as configured")
	}

	return apPort, staPort, false
}
