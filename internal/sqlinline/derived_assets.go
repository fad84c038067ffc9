package sqlinline

const derivedAssetColumns = `id, owner_id, raw_key, raw_url, raw_bytes, raw_content_type,
  cutout_key, cutout_url, optimized_key, optimized_url, thumbnail_key, thumbnail_url,
  width, height, dominant_color, colors, status, error_kind, error_message, created_at, updated_at`

const QInsertDerivedAsset = `--sql 10ca52a5-fdc3-4784-bd73-418cf838d9f6
insert into derived_assets (
  id, owner_id, raw_key, raw_url, raw_bytes, raw_content_type, status, created_at, updated_at
) values (
  $1::text, $2::text, $3::text, $4::text, $5::bigint, $6::text, $7::text, $8::timestamptz, $9::timestamptz
);
`

const QSelectDerivedAssetByID = `--sql 73b09430-b6bc-4833-a516-6a300415d4f7
select ` + derivedAssetColumns + `
from derived_assets
where id = $1::text
limit 1;
`

const QListDerivedAssetsByOwner = `--sql 76b25f1a-0532-42c4-a888-ddb5f4e5cb6e
select ` + derivedAssetColumns + `
from derived_assets
where owner_id = $1::text
order by created_at desc, id desc
limit $2::int offset $3::int;
`

const QSelectDerivedAssetsByIDs = `--sql ffe0e911-01f5-4dbe-b308-15a5141513a9
select ` + derivedAssetColumns + `
from derived_assets
where id = any($1::text[]);
`

const QSelectDerivedAssetStatus = `--sql ee465843-82dc-4551-a52a-3055635d8f6f
select status
from derived_assets
where id = $1::text
limit 1;
`

const QMarkDerivedAssetProcessing = `--sql 7b00352f-7c23-4db9-a1f0-d3296ebcc65a
update derived_assets
set status = 'processing',
    updated_at = now()
where id = $1::text
  and status = 'pending';
`

const QCompleteDerivedAsset = `--sql c8d8fbd9-ad13-4af1-a41a-778260d42ce9
update derived_assets
set status = 'completed',
    cutout_key = $2::text,
    cutout_url = $3::text,
    optimized_key = $4::text,
    optimized_url = $5::text,
    thumbnail_key = $6::text,
    thumbnail_url = $7::text,
    width = $8::int,
    height = $9::int,
    dominant_color = $10::text,
    colors = $11::jsonb,
    error_kind = '',
    error_message = '',
    updated_at = now()
where id = $1::text
  and status = 'processing';
`

const QFailDerivedAsset = `--sql 091ea224-1a4b-4fc2-b0b0-233bcac7ba43
update derived_assets
set status = 'failed',
    cutout_key = '', cutout_url = '',
    optimized_key = '', optimized_url = '',
    thumbnail_key = '', thumbnail_url = '',
    width = 0, height = 0,
    dominant_color = null,
    colors = '[]'::jsonb,
    error_kind = $2::text,
    error_message = $3::text,
    updated_at = now()
where id = $1::text
  and status = 'processing';
`

const QResetDerivedAsset = `--sql b6d7eac6-5306-480c-864a-eb34e534454d
update derived_assets
set status = 'pending',
    error_kind = '',
    error_message = '',
    updated_at = now()
where id = $1::text
  and status = 'failed';
`

const QListStalePendingDerivedAssets = `--sql 02353f6f-4069-4b8d-acd3-5eb95b1e08c1
select ` + derivedAssetColumns + `
from derived_assets
where status = 'pending'
  and updated_at < $1::timestamptz
order by updated_at asc
limit $2::int;
`

const QFailStaleProcessingDerivedAssets = `--sql 806e22bd-68db-4d19-b50b-73b71eb7708f
update derived_assets
set status = 'failed',
    cutout_key = '', cutout_url = '',
    optimized_key = '', optimized_url = '',
    thumbnail_key = '', thumbnail_url = '',
    width = 0, height = 0,
    dominant_color = null,
    colors = '[]'::jsonb,
    error_kind = $2::text,
    error_message = $3::text,
    updated_at = now()
where status = 'processing'
  and updated_at < $1::timestamptz;
`

const QListFailedDerivedAssetIDsByOwner = `--sql ff674b5e-9a94-4d1a-bb02-505d9abb9af9
select id
from derived_assets
where owner_id = $1::text
  and status = 'failed'
order by created_at asc;
`
