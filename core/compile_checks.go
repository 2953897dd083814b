package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ Kind             = (*BasicKind)(nil)
	_ CredentialSource = (*Controller)(nil)
	_ error            = (*IntegrationError)(nil)
	_ error            = (*ProviderError)(nil)

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
