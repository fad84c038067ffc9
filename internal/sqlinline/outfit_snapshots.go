package sqlinline

const snapshotColumns = `id, owner_id, artifact_key, artifact_url, layout, generation, generated_at, created_at, updated_at`

const QInsertOutfitSnapshot = `--sql a9fd8b39-5a68-44b3-ba36-440bf8298646
insert into outfit_snapshots (
  id, owner_id, artifact_key, artifact_url, layout, generation, generated_at, created_at, updated_at
) values (
  $1::text, $2::text, $3::text, $4::text, $5::jsonb, $6::int, $7::timestamptz, $8::timestamptz, $9::timestamptz
);
`

const QSelectOutfitSnapshotByID = `--sql f01db305-f3d9-4225-8e1a-2b0490601cbe
select ` + snapshotColumns + `
from outfit_snapshots
where id = $1::text
limit 1;
`

const QListOutfitSnapshotsByOwner = `--sql 26dd7f93-b0cc-4f1a-a59a-01abaa7bcc66
select ` + snapshotColumns + `
from outfit_snapshots
where owner_id = $1::text
order by created_at desc, id desc;
`

const QSwapOutfitSnapshot = `--sql c4145376-1fea-4e26-8a21-1fa5f18f089c
update outfit_snapshots
set artifact_key = $3::text,
    artifact_url = $4::text,
    layout = $5::jsonb,
    generation = generation + 1,
    generated_at = $6::timestamptz,
    updated_at = now()
where id = $1::text
  and generation = $2::int
returning ` + snapshotColumns + `;
`

const QSelectOutfitSnapshotGeneration = `--sql b663d2fc-7fb1-4b29-b4d7-70c35a709aa2
select generation
from outfit_snapshots
where id = $1::text
limit 1;
`

const QDeleteOutfitSnapshot = `--sql cd2f3df3-785f-409f-aada-4069c3a73c48
delete from outfit_snapshots
where id = $1::text;
`
