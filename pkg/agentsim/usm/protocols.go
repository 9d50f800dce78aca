package usm

import (
	"fmt"
	"strings"

	"github.com/gosnmp/gosnmp"
)

func authProtoByName(name string) (gosnmp.SnmpV3AuthProtocol, error) {
	switch strings.ToUpper(name) {
	case "MD5":
		return gosnmp.MD5, nil
	case "SHA", "SHA1":
		return gosnmp.SHA, nil
	case "SHA224":
		return gosnmp.SHA224, nil
	case "SHA256":
		return gosnmp.SHA256, nil
	case "SHA384":
		return gosnmp.SHA384, nil
	case "SHA512":
		return gosnmp.SHA512, nil
	case "", "NONE":
		return gosnmp.NoAuth, nil
	default:
		return gosnmp.NoAuth, fmt.Errorf("usm: unknown auth protocol %q", name)
	}
}

func privProtoByName(name string) (gosnmp.SnmpV3PrivProtocol, error) {
	switch strings.ToUpper(name) {
	case "DES":
		return gosnmp.DES, nil
	case "AES", "AES128":
		return gosnmp.AES, nil
	case "AES192":
		return gosnmp.AES192, nil
	case "AES256":
		return gosnmp.AES256, nil
	case "", "NONE":
		return gosnmp.NoPriv, nil
	default:
		return gosnmp.NoPriv, fmt.Errorf("usm: unknown privacy protocol %q", name)
	}
}
