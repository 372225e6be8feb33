package session

import (
	"errors"

	"github.com/opendmtp/dmtp-backend/internal/dmtp"
	"github.com/opendmtp/dmtp-backend/internal/metrics"
	"github.com/opendmtp/dmtp-backend/internal/wire"
	"github.com/opendmtp/dmtp-backend/pkg/schema"
)

// errAuthFailed marks an authenticate() return that has already sent its
// own nack; Run only needs to know to proceed straight to DRAIN.
var errAuthFailed = errors.New("session: authentication failed")

// authenticate implements the AUTH state (spec.md §4.D): read
// identification packets until a valid (account, device) pair resolves,
// rejecting anything else. A session may resolve identity either from a
// single UNIQUE_ID packet (self-sufficient: the device store maps it
// straight to an account+device pair) or from an ACCOUNT_ID followed by a
// DEVICE_ID packet.
func (s *Session) authenticate() error {
	var pendingAccountID string
	var haveAccountID bool

	for {
		if s.sessionExpired() {
			return errAuthFailed
		}

		idle, packet := s.deadlines()
		pkt, err := s.reader.ReadFrame(idle, packet)
		if err != nil {
			return s.handleReadErrPreAuth(err)
		}
		s.header = pkt.Header
		s.framing = pkt.Framing

		meta := dmtp.Lookup(pkt.Type)
		if !meta.AllowedPreAuth {
			s.writeNack(dmtp.Protocol, pkt.Type, 0, false)
			return errAuthFailed
		}

		switch meta.Kind {
		case dmtp.KindUniqueID:
			ident, err := dmtp.DecodeUniqueID(pkt.Payload)
			if err != nil {
				s.writeNack(dmtp.IDInvalid, pkt.Type, 0, false)
				return errAuthFailed
			}
			device, result, err := s.devices.GetByUniqueID(ident.UniqueID)
			if err := s.resolveDevice(pkt.Type, device, result, err); err != nil {
				return err
			}
			return s.finishAuth(pkt.Type)

		case dmtp.KindAccountID:
			ident, err := dmtp.DecodeIdentText(dmtp.KindAccountID, pkt.Payload)
			if err != nil || !dmtp.ValidIdentifier(ident.Text) {
				s.writeNack(dmtp.IDInvalid, pkt.Type, 0, false)
				return errAuthFailed
			}
			pendingAccountID = ident.Text
			haveAccountID = true

		case dmtp.KindDeviceID:
			ident, err := dmtp.DecodeIdentText(dmtp.KindDeviceID, pkt.Payload)
			if err != nil || !dmtp.ValidIdentifier(ident.Text) {
				s.writeNack(dmtp.IDInvalid, pkt.Type, 0, false)
				return errAuthFailed
			}
			if !haveAccountID {
				s.writeNack(dmtp.IDInvalid, pkt.Type, 0, false)
				return errAuthFailed
			}
			device, result, err := s.devices.Get(pendingAccountID, ident.Text)
			s.accountID = pendingAccountID
			s.deviceID = ident.Text
			if err := s.resolveDevice(pkt.Type, device, result, err); err != nil {
				return err
			}
			return s.finishAuth(pkt.Type)

		default:
			s.writeNack(dmtp.Protocol, pkt.Type, 0, false)
			return errAuthFailed
		}
	}
}

// resolveDevice validates a device lookup's outcome and, on success,
// resolves and validates its account too. It sets s.accountID/s.deviceID
// from the resolved device record so the UNIQUE_ID path (which has no
// prior ACCOUNT_ID packet to draw them from) still ends up identified.
func (s *Session) resolveDevice(offType byte, device schema.Device, result schema.Result, err error) error {
	if err != nil || result == schema.ResultError {
		s.writeNack(dmtp.DeviceError, offType, 0, false)
		return errAuthFailed
	}
	if result == schema.ResultNotFound {
		s.writeNack(dmtp.DeviceInvalid, offType, 0, false)
		return errAuthFailed
	}
	if !device.IsActive {
		s.writeNack(dmtp.DeviceInactive, offType, 0, false)
		return errAuthFailed
	}

	s.accountID = device.AccountID
	s.deviceID = device.DeviceID
	s.device = device

	account, result, err := s.accounts.Get(s.accountID)
	if err != nil || result == schema.ResultError {
		s.writeNack(dmtp.AccountError, offType, 0, false)
		return errAuthFailed
	}
	if result == schema.ResultNotFound {
		s.writeNack(dmtp.AccountInvalid, offType, 0, false)
		return errAuthFailed
	}
	if !account.IsActive {
		s.writeNack(dmtp.AccountInactive, offType, 0, false)
		return errAuthFailed
	}

	return nil
}

// finishAuth applies the connection-rate limit, the last gate before a
// session may enter ACTIVE (spec.md §4.D).
func (s *Session) finishAuth(offType byte) error {
	if !s.limiter.AllowConnection(s.accountID, s.deviceID) {
		metrics.RateLimitRejectedTotal.WithLabelValues("connection").Inc()
		s.writeNack(dmtp.ExcessiveConnections, offType, 0, false)
		return errAuthFailed
	}
	return nil
}

// handleReadErrPreAuth maps a ReadFrame failure seen during AUTH onto the
// AUTH-specific outcome: there is no identity yet to blame a nack on in
// most of these cases, so the session simply ends.
func (s *Session) handleReadErrPreAuth(err error) error {
	switch {
	case errors.Is(err, wire.ErrEndOfStream):
		return errAuthFailed
	case errors.Is(err, wire.ErrTimeout):
		return errAuthFailed
	default:
		var fe *wire.FrameError
		if errors.As(err, &fe) {
			s.writeNack(dmtp.FromFrameError(fe), 0, 0, false)
		}
		return errAuthFailed
	}
}
