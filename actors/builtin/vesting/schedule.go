package vesting

import (
	"encoding/binary"
	"fmt"
	"io"

	addr "github.com/filecoin-project/go-address"
	abi "github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/minio/blake2b-simd"
	"github.com/multiformats/go-multibase"
	cbg "github.com/whyrusleeping/cbor-gen"
	xerrors "golang.org/x/xerrors"
)

// ScheduleID identifies a vesting schedule. It is a pure function of the beneficiary
// and the schedule's position among that beneficiary's schedules.
type ScheduleID [ScheduleIDLength]byte

var _ abi.Keyer = ScheduleID{}

// ComputeScheduleID hashes the beneficiary's address bytes followed by the index
// encoded as a 256-bit big-endian integer.
func ComputeScheduleID(beneficiary addr.Address, index uint64) ScheduleID {
	raw := beneficiary.Bytes()
	buf := make([]byte, len(raw)+32)
	copy(buf, raw)
	binary.BigEndian.PutUint64(buf[len(buf)-8:], index)
	return ScheduleID(blake2b.Sum256(buf))
}

func (id ScheduleID) Key() string {
	return string(id[:])
}

func (id ScheduleID) String() string {
	s, err := multibase.Encode(multibase.Base32, id[:])
	if err != nil {
		panic(err)
	}
	return s
}

func (id ScheduleID) IsZero() bool {
	return id == ScheduleID{}
}

// ParseScheduleID decodes the multibase string form produced by String.
func ParseScheduleID(s string) (ScheduleID, error) {
	_, data, err := multibase.Decode(s)
	if err != nil {
		return ScheduleID{}, xerrors.Errorf("failed to decode schedule id %q: %w", s, err)
	}
	if len(data) != ScheduleIDLength {
		return ScheduleID{}, xerrors.Errorf("schedule id %q has %d bytes, expected %d", s, len(data), ScheduleIDLength)
	}
	var id ScheduleID
	copy(id[:], data)
	return id, nil
}

func (id ScheduleID) MarshalCBOR(w io.Writer) error {
	scratch := make([]byte, 9)
	if err := cbg.WriteMajorTypeHeaderBuf(scratch, w, cbg.MajByteString, uint64(len(id))); err != nil {
		return err
	}
	_, err := w.Write(id[:])
	return err
}

func (id *ScheduleID) UnmarshalCBOR(r io.Reader) error {
	br := cbg.GetPeeker(r)
	scratch := make([]byte, 9)

	maj, extra, err := cbg.CborReadHeaderBuf(br, scratch)
	if err != nil {
		return err
	}
	if maj != cbg.MajByteString {
		return fmt.Errorf("expected byte array")
	}
	if extra != ScheduleIDLength {
		return fmt.Errorf("schedule id: expected %d bytes, got %d", ScheduleIDLength, extra)
	}
	_, err = io.ReadFull(br, id[:])
	return err
}

// VestingSchedule is a single linear release of AmountTotal to Beneficiary.
// Nothing is releasable before Cliff; everything is releasable from Start+Duration.
// In between the vested amount grows in whole slices of SlicePeriodSeconds.
type VestingSchedule struct {
	Beneficiary        addr.Address
	Cliff              abi.ChainEpoch
	Start              abi.ChainEpoch
	Duration           abi.ChainEpoch
	SlicePeriodSeconds abi.ChainEpoch
	Revocable          bool
	AmountTotal        abi.TokenAmount
	Released           abi.TokenAmount
	Revoked            bool
}

func (s *VestingSchedule) End() abi.ChainEpoch {
	return s.Start + s.Duration
}

// VestedAmount is the cumulative amount vested at an epoch, irrespective of releases.
func (s *VestingSchedule) VestedAmount(now abi.ChainEpoch) abi.TokenAmount {
	if now < s.Cliff {
		return big.Zero()
	}
	if now >= s.End() {
		return s.AmountTotal
	}
	elapsed := now - s.Start
	if elapsed <= 0 {
		return big.Zero()
	}
	vestedTime := (elapsed / s.SlicePeriodSeconds) * s.SlicePeriodSeconds
	return big.Div(big.Mul(s.AmountTotal, big.NewInt(int64(vestedTime))), big.NewInt(int64(s.Duration)))
}

// ReleasableAmount is the amount the beneficiary could release at an epoch.
// Revocation is not considered here; callers reject revoked schedules first.
func (s *VestingSchedule) ReleasableAmount(now abi.ChainEpoch) abi.TokenAmount {
	if now < s.Cliff {
		return big.Zero()
	}
	if now >= s.End() {
		return big.Sub(s.AmountTotal, s.Released)
	}
	return big.Max(big.Sub(s.VestedAmount(now), s.Released), big.Zero())
}

// Unreleased is the part of AmountTotal still held for the beneficiary.
func (s *VestingSchedule) Unreleased() abi.TokenAmount {
	return big.Sub(s.AmountTotal, s.Released)
}
