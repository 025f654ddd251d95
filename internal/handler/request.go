package handler

import (
	"io"
	"reflect"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"github.com/shopspring/decimal"

	"github.com/mosaed-alotaibi/retail-discount-service/internal/domain/bill"
)

const maxBodyBytes = 1 << 20

type createBillRequest struct {
	CustomerID string            `json:"customerId" validate:"omitempty,max=64"`
	Items      []billItemRequest `json:"items" validate:"required,min=1,dive"`
}

type billItemRequest struct {
	Name      string           `json:"name" validate:"notblank,max=255"`
	Category  string           `json:"category" validate:"notblank"`
	UnitPrice *decimal.Decimal `json:"unitPrice" validate:"required,gte=0.01,lte=9999999999.99"`
	Quantity  int              `json:"quantity" validate:"min=1"`
}

func (r createBillRequest) toItems() []bill.ItemInput {
	out := make([]bill.ItemInput, len(r.Items))
	for i, it := range r.Items {
		out[i] = bill.ItemInput{
			Name:      it.Name,
			Category:  it.Category,
			UnitPrice: *it.UnitPrice,
			Quantity:  it.Quantity,
		}
	}
	return out
}

func decodeCreateBill(body io.Reader) (createBillRequest, error) {
	var req createBillRequest
	d := jx.Decode(body, 4096)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "customerId":
			v, err := decodeOptStr(d)
			req.CustomerID = v
			return err
		case "items":
			if d.Next() == jx.Null {
				return d.Null()
			}
			return d.Arr(func(d *jx.Decoder) error {
				it, err := decodeItem(d)
				if err != nil {
					return err
				}
				req.Items = append(req.Items, it)
				return nil
			})
		default:
			return d.Skip()
		}
	})
	return req, err
}

func decodeItem(d *jx.Decoder) (billItemRequest, error) {
	var it billItemRequest
	err := d.Obj(func(d *jx.Decoder, key string) (err error) {
		switch key {
		case "name":
			it.Name, err = decodeOptStr(d)
		case "category":
			it.Category, err = decodeOptStr(d)
		case "unitPrice":
			it.UnitPrice, err = decodeDecimal(d)
		case "quantity":
			if d.Next() == jx.Null {
				return d.Null()
			}
			it.Quantity, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	})
	return it, err
}

func decodeOptStr(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

// decodeDecimal accepts a JSON number or a numeric string.
func decodeDecimal(d *jx.Decoder) (*decimal.Decimal, error) {
	var raw string
	switch d.Next() {
	case jx.Null:
		return nil, d.Null()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return nil, err
		}
		raw = s
	default:
		n, err := d.Num()
		if err != nil {
			return nil, err
		}
		raw = string(n)
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "parse decimal %q", raw)
	}
	return &v, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterCustomTypeFunc(func(f reflect.Value) any {
		if d, ok := f.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{})
	if err := v.RegisterValidation("notblank", validators.NotBlank); err != nil {
		panic(err)
	}
	return v
}

// validateStruct returns nil or the field errors found in s.
func validateStruct(s any) fieldErrors {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fieldErrors{"": err.Error()}
	}
	out := make(fieldErrors, len(verrs))
	for _, e := range verrs {
		out[fieldPath(e)] = validationMessage(e)
	}
	return out
}

// fieldPath drops the struct name from the namespace: items[0].unitPrice.
func fieldPath(e validator.FieldError) string {
	ns := e.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func validationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required", "notblank":
		if e.Kind() == reflect.Slice {
			return "must not be empty"
		}
		return "is required"
	case "min":
		if e.Kind() == reflect.Slice {
			return "must contain at least " + e.Param() + " item(s)"
		}
		return "must be at least " + e.Param()
	case "max":
		if e.Kind() == reflect.String {
			return "must be at most " + e.Param() + " characters"
		}
		return "must be at most " + e.Param()
	case "gte":
		return "must be at least " + e.Param()
	case "lte":
		return "must be at most " + e.Param()
	default:
		return "is invalid"
	}
}
