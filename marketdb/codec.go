package marketdb

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"github.com/unimarket/callmarket/order"
	"github.com/unimarket/callmarket/venue/matching"
)

// byteOrder is the byte order used for all integer serialization.
var byteOrder = binary.BigEndian

// WriteElements writes each element in the elements slice to the passed
// buffer using WriteElement.
func WriteElements(w *bytes.Buffer, elements ...interface{}) error {
	for _, element := range elements {
		err := WriteElement(w, element)
		if err != nil {
			return err
		}
	}
	return nil
}

// WriteElement is a one-stop shop to write the big endian representation of
// any element which is to be serialized.
func WriteElement(w *bytes.Buffer, element interface{}) error {
	switch e := element.(type) {
	case order.Nonce:
		if _, err := w.Write(e[:]); err != nil {
			return err
		}

	case order.State:
		return WriteElement(w, uint8(e))

	case bool:
		var b uint8
		if e {
			b = 1
		}
		return WriteElement(w, b)

	case uint8:
		return w.WriteByte(e)

	case uint32:
		var scratch [4]byte
		byteOrder.PutUint32(scratch[:], e)
		_, err := w.Write(scratch[:])
		return err

	case uint64:
		var scratch [8]byte
		byteOrder.PutUint64(scratch[:], e)
		_, err := w.Write(scratch[:])
		return err

	case int64:
		return WriteElement(w, uint64(e))

	case time.Time:
		return WriteElement(w, e.UnixNano())

	case decimal.Decimal:
		// Decimals are stored in their exact string representation.
		return WriteElement(w, []byte(e.String()))

	case []byte:
		if err := WriteElement(w, uint32(len(e))); err != nil {
			return err
		}
		_, err := w.Write(e)
		return err

	default:
		return fmt.Errorf("unhandled element type: %T", element)
	}

	return nil
}

// ReadElements deserializes a variable number of elements from the passed
// io.Reader, with each element being deserialized according to the
// ReadElement function.
func ReadElements(r io.Reader, elements ...interface{}) error {
	for _, element := range elements {
		err := ReadElement(r, element)
		if err != nil {
			return err
		}
	}
	return nil
}

// ReadElement is a one-stop utility function to deserialize any element
// encoded with WriteElement.
func ReadElement(r io.Reader, element interface{}) error {
	switch e := element.(type) {
	case *order.Nonce:
		if _, err := io.ReadFull(r, e[:]); err != nil {
			return err
		}

	case *order.State:
		var s uint8
		if err := ReadElement(r, &s); err != nil {
			return err
		}
		*e = order.State(s)

	case *bool:
		var b uint8
		if err := ReadElement(r, &b); err != nil {
			return err
		}
		*e = b != 0

	case *uint8:
		var scratch [1]byte
		if _, err := io.ReadFull(r, scratch[:]); err != nil {
			return err
		}
		*e = scratch[0]

	case *uint32:
		var scratch [4]byte
		if _, err := io.ReadFull(r, scratch[:]); err != nil {
			return err
		}
		*e = byteOrder.Uint32(scratch[:])

	case *uint64:
		var scratch [8]byte
		if _, err := io.ReadFull(r, scratch[:]); err != nil {
			return err
		}
		*e = byteOrder.Uint64(scratch[:])

	case *int64:
		var u uint64
		if err := ReadElement(r, &u); err != nil {
			return err
		}
		*e = int64(u)

	case *time.Time:
		var nanos int64
		if err := ReadElement(r, &nanos); err != nil {
			return err
		}
		*e = time.Unix(0, nanos)

	case *decimal.Decimal:
		var raw []byte
		if err := ReadElement(r, &raw); err != nil {
			return err
		}
		dec, err := decimal.NewFromString(string(raw))
		if err != nil {
			return err
		}
		*e = dec

	case *[]byte:
		var length uint32
		if err := ReadElement(r, &length); err != nil {
			return err
		}
		raw := make([]byte, length)
		if _, err := io.ReadFull(r, raw); err != nil {
			return err
		}
		*e = raw

	default:
		return fmt.Errorf("unhandled element type: %T", element)
	}

	return nil
}

// serializeOrder writes the full wire representation of an order to the
// given buffer.
func serializeOrder(w *bytes.Buffer, o order.ServerOrder) error {
	kit := o.Details()

	return WriteElements(
		w, o.IsAsk(), o.Nonce(), kit.Price, kit.Volume,
		kit.UnitsUnfulfilled, kit.State, kit.Created,
	)
}

// deserializeOrder reads an order from the given reader, reconstructing the
// concrete ask or bid type.
func deserializeOrder(r io.Reader) (order.ServerOrder, error) {
	var (
		isAsk bool
		nonce order.Nonce
		kit   order.Kit
	)
	err := ReadElements(
		r, &isAsk, &nonce, &kit.Price, &kit.Volume,
		&kit.UnitsUnfulfilled, &kit.State, &kit.Created,
	)
	if err != nil {
		return nil, err
	}
	kit.SetNonce(nonce)

	if isAsk {
		return &order.Ask{Kit: kit}, nil
	}
	return &order.Bid{Kit: kit}, nil
}

// serializeBatchSnapshot writes the full wire representation of a batch
// snapshot to the given buffer.
func serializeBatchSnapshot(w *bytes.Buffer, snapshot *BatchSnapshot) error {
	batch := snapshot.Batch
	err := WriteElements(
		w, snapshot.Seq, snapshot.Timestamp, batch.Volume,
		batch.ClearingPrice, batch.ClearingRange.Low,
		batch.ClearingRange.High,
	)
	if err != nil {
		return err
	}

	if err := WriteElement(w, uint32(len(batch.Orders))); err != nil {
		return err
	}
	for _, match := range batch.Orders {
		if err := serializeOrder(w, match.Ask); err != nil {
			return err
		}
		if err := serializeOrder(w, match.Bid); err != nil {
			return err
		}
		if err := WriteElement(w, match.UnitsMatched); err != nil {
			return err
		}
	}

	report := batch.FeeReport
	err = WriteElement(w, uint32(len(report.OrderFees)))
	if err != nil {
		return err
	}
	for nonce, fee := range report.OrderFees {
		if err := WriteElements(w, nonce, fee); err != nil {
			return err
		}
	}

	return WriteElement(w, report.AuctioneerFeesAccrued)
}

// deserializeBatchSnapshot reads a batch snapshot from the given reader.
func deserializeBatchSnapshot(r io.Reader) (*BatchSnapshot, error) {
	var (
		snapshot BatchSnapshot
		batch    matching.OrderBatch
	)
	err := ReadElements(
		r, &snapshot.Seq, &snapshot.Timestamp, &batch.Volume,
		&batch.ClearingPrice, &batch.ClearingRange.Low,
		&batch.ClearingRange.High,
	)
	if err != nil {
		return nil, err
	}

	var numOrders uint32
	if err := ReadElement(r, &numOrders); err != nil {
		return nil, err
	}
	batch.Orders = make([]matching.MatchedOrder, numOrders)
	for i := range batch.Orders {
		askOrder, err := deserializeOrder(r)
		if err != nil {
			return nil, err
		}
		bidOrder, err := deserializeOrder(r)
		if err != nil {
			return nil, err
		}
		ask, ok := askOrder.(*order.Ask)
		if !ok {
			return nil, fmt.Errorf("expected ask, got %T",
				askOrder)
		}
		bid, ok := bidOrder.(*order.Bid)
		if !ok {
			return nil, fmt.Errorf("expected bid, got %T",
				bidOrder)
		}

		var units uint64
		if err := ReadElement(r, &units); err != nil {
			return nil, err
		}

		batch.Orders[i] = matching.MatchedOrder{
			Ask:          ask,
			Bid:          bid,
			UnitsMatched: units,
		}
	}

	var numFees uint32
	if err := ReadElement(r, &numFees); err != nil {
		return nil, err
	}
	batch.FeeReport.OrderFees = make(
		map[order.Nonce]decimal.Decimal, numFees,
	)
	for i := uint32(0); i < numFees; i++ {
		var (
			nonce order.Nonce
			fee   decimal.Decimal
		)
		if err := ReadElements(r, &nonce, &fee); err != nil {
			return nil, err
		}
		batch.FeeReport.OrderFees[nonce] = fee
	}

	err = ReadElement(r, &batch.FeeReport.AuctioneerFeesAccrued)
	if err != nil {
		return nil, err
	}

	snapshot.Batch = &batch
	return &snapshot, nil
}
