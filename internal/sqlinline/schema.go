package sqlinline

const QCreateDerivedAssetsTable = `--sql 2304d98c-cdc9-405c-8289-7561584bc274
create table if not exists derived_assets (
  id text primary key,
  owner_id text not null,
  raw_key text not null,
  raw_url text not null,
  raw_bytes bigint not null default 0,
  raw_content_type text not null default '',
  cutout_key text not null default '',
  cutout_url text not null default '',
  optimized_key text not null default '',
  optimized_url text not null default '',
  thumbnail_key text not null default '',
  thumbnail_url text not null default '',
  width int not null default 0,
  height int not null default 0,
  dominant_color text,
  colors jsonb not null default '[]'::jsonb,
  status text not null default 'pending',
  error_kind text not null default '',
  error_message text not null default '',
  created_at timestamptz not null default now(),
  updated_at timestamptz not null default now(),
  constraint derived_assets_status_check check (status in ('pending', 'processing', 'completed', 'failed'))
);
`

const QCreateDerivedAssetsOwnerIndex = `--sql 318f4d95-1362-4808-bbb4-cbaaa0727b70
create index if not exists idx_derived_assets_owner on derived_assets(owner_id, created_at desc);
`

const QCreateDerivedAssetsStatusIndex = `--sql 880b6987-0a9c-4054-97bc-2ea690679449
create index if not exists idx_derived_assets_status on derived_assets(status, updated_at);
`

const QCreateOutfitSnapshotsTable = `--sql ab38431c-37f0-44ac-a3b8-6e0e85260661
create table if not exists outfit_snapshots (
  id text primary key,
  owner_id text not null,
  artifact_key text not null,
  artifact_url text not null,
  layout jsonb not null,
  generation int not null default 1,
  generated_at timestamptz not null,
  created_at timestamptz not null default now(),
  updated_at timestamptz not null default now()
);
`

const QCreateOutfitSnapshotsOwnerIndex = `--sql fac9fd0e-16e2-427f-a291-06aa251e51ca
create index if not exists idx_outfit_snapshots_owner on outfit_snapshots(owner_id, created_at desc);
`

// Schema lists the statements that create the Postgres schema, in order.
var Schema = []string{
	QCreateDerivedAssetsTable,
	QCreateDerivedAssetsOwnerIndex,
	QCreateDerivedAssetsStatusIndex,
	QCreateOutfitSnapshotsTable,
	QCreateOutfitSnapshotsOwnerIndex,
}
