package model

import (
	"fmt"
	"math/big"
	"reflect"

	sdkmath "cosmossdk.io/math"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsoncodec"
	"go.mongodb.org/mongo-driver/bson/bsonrw"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var tInt = reflect.TypeOf(sdkmath.Int{})

// Registry is the bson registry used by every client of the ledger. Token
// amounts (sdkmath.Int) are stored as Decimal128 so that $sum and $inc
// stay exact.
func Registry() *bsoncodec.Registry {
	reg := bson.NewRegistry()
	reg.RegisterTypeEncoder(tInt, bsoncodec.ValueEncoderFunc(encodeInt))
	reg.RegisterTypeDecoder(tInt, bsoncodec.ValueDecoderFunc(decodeInt))
	return reg
}

// ToDecimal128 converts an amount into its stored representation.
func ToDecimal128(amount sdkmath.Int) (primitive.Decimal128, error) {
	if amount.IsNil() {
		return primitive.NewDecimal128(0, 0), nil
	}
	d, ok := primitive.ParseDecimal128FromBigInt(amount.BigInt(), 0)
	if !ok {
		return primitive.Decimal128{}, fmt.Errorf("amount %s does not fit in decimal128", amount)
	}
	return d, nil
}

// FromDecimal128 converts a stored amount back, truncating any fraction.
func FromDecimal128(d primitive.Decimal128) (sdkmath.Int, error) {
	bi, exp, err := d.BigInt()
	if err != nil {
		return sdkmath.Int{}, err
	}
	switch {
	case exp > 0:
		bi.Mul(bi, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil))
	case exp < 0:
		bi.Quo(bi, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(-exp)), nil))
	}
	return sdkmath.NewIntFromBigInt(bi), nil
}

func encodeInt(_ bsoncodec.EncodeContext, vw bsonrw.ValueWriter, val reflect.Value) error {
	if !val.IsValid() || val.Type() != tInt {
		return bsoncodec.ValueEncoderError{Name: "IntEncodeValue", Types: []reflect.Type{tInt}, Received: val}
	}
	d, err := ToDecimal128(val.Interface().(sdkmath.Int))
	if err != nil {
		return err
	}
	return vw.WriteDecimal128(d)
}

func decodeInt(_ bsoncodec.DecodeContext, vr bsonrw.ValueReader, val reflect.Value) error {
	if !val.CanSet() || val.Type() != tInt {
		return bsoncodec.ValueDecoderError{Name: "IntDecodeValue", Types: []reflect.Type{tInt}, Received: val}
	}

	var (
		amount sdkmath.Int
		err    error
	)
	switch vr.Type() {
	case bsontype.Decimal128:
		var d primitive.Decimal128
		if d, err = vr.ReadDecimal128(); err != nil {
			return err
		}
		amount, err = FromDecimal128(d)
	case bsontype.Int32:
		var i int32
		i, err = vr.ReadInt32()
		amount = sdkmath.NewInt(int64(i))
	case bsontype.Int64:
		var i int64
		i, err = vr.ReadInt64()
		amount = sdkmath.NewInt(i)
	case bsontype.String:
		var s string
		if s, err = vr.ReadString(); err != nil {
			return err
		}
		var ok bool
		if amount, ok = sdkmath.NewIntFromString(s); !ok {
			err = fmt.Errorf("invalid amount %q", s)
		}
	case bsontype.Null:
		err = vr.ReadNull()
		amount = sdkmath.ZeroInt()
	default:
		return fmt.Errorf("cannot decode %v into an amount", vr.Type())
	}
	if err != nil {
		return err
	}

	val.Set(reflect.ValueOf(amount))
	return nil
}
