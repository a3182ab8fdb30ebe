// Package mysql persists action invocation history. It embeds the SQL
// migrations from deploy/migrations, offers a file-backed repository for local
// development and a MySQL repository for production deployments.
package mysql
