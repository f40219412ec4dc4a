package builtin

import (
	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
)

// The built-in actor code IDs
var SystemActorCodeID cid.Cid
var AccountActorCodeID cid.Cid
var TokenActorCodeID cid.Cid
var CoinVestingActorCodeID cid.Cid
var TokenVestingActorCodeID cid.Cid

// Set of actor code types that can represent external signing parties.
var CallerTypesSignable []cid.Cid

func init() {
	builder := cid.V1Builder{Codec: cid.Raw, MhType: mh.IDENTITY}
	makeBuiltin := func(s string) cid.Cid {
		c, err := builder.Sum([]byte(s))
		if err != nil {
			panic(err)
		}
		return c
	}

	SystemActorCodeID = makeBuiltin("epik/1/system")
	AccountActorCodeID = makeBuiltin("epik/1/account")
	TokenActorCodeID = makeBuiltin("epik/1/token")
	CoinVestingActorCodeID = makeBuiltin("epik/1/coinvesting")
	TokenVestingActorCodeID = makeBuiltin("epik/1/tokenvesting")

	CallerTypesSignable = []cid.Cid{AccountActorCodeID}
}

// ActorNameByCode returns the (string) name of the actor given a cid code.
func ActorNameByCode(code cid.Cid) string {
	if !code.Defined() {
		return "<undefined>"
	}

	switch {
	case code.Equals(SystemActorCodeID):
		return "epik/1/system"
	case code.Equals(AccountActorCodeID):
		return "epik/1/account"
	case code.Equals(TokenActorCodeID):
		return "epik/1/token"
	case code.Equals(CoinVestingActorCodeID):
		return "epik/1/coinvesting"
	case code.Equals(TokenVestingActorCodeID):
		return "epik/1/tokenvesting"
	default:
		return "<unknown>"
	}
}
