package sqlassets

import _ "embed"

//go:embed schema/platform/xero_connections.sql
var XeroConnectionsSQL string

//go:embed schema/platform/authorized_tenants.sql
var AuthorizedTenantsSQL string
